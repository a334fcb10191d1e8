// Copyright 2024 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hasher

// LeadingZeros counts the leading '0' characters of a hex digest
func LeadingZeros(digest string) int {
	for i := 0; i < len(digest); i++ {
		if digest[i] != '0' {
			return i
		}
	}
	return len(digest)
}

// MeetsDifficulty reports whether a hex digest starts with at least
// difficulty '0' characters
func MeetsDifficulty(digest string, difficulty int) bool {
	if difficulty < 0 || difficulty > len(digest) {
		return false
	}
	return LeadingZeros(digest[:difficulty]) == difficulty
}

// SumMeetsDifficulty is MeetsDifficulty for a raw digest, without the hex
// encoding step. Each zero byte counts for two hex characters and a zero high
// nibble for one.
func SumMeetsDifficulty(sum []byte, difficulty int) bool {
	if difficulty < 0 || difficulty > len(sum)*2 {
		return false
	}
	fullBytes := difficulty / 2
	for i := 0; i < fullBytes; i++ {
		if sum[i] != 0 {
			return false
		}
	}
	if difficulty%2 == 1 && sum[fullBytes]>>4 != 0 {
		return false
	}
	return true
}
