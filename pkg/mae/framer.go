/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mae

import (
	"bytes"
	"fmt"
)

// Frame delimiters used by the element manager. Every frame arrives as
// StartMarker, the frame text, then EndMarker; the stream carries no length
// prefix, so reassembly works purely on these markers.
const (
	StartMarker = "<+++>"
	EndMarker   = "<--->"
)

var (
	startMarkerBytes = []byte(StartMarker)
	endMarkerBytes   = []byte(EndMarker)
)

// RawFrame is the text between one start marker and the next end marker,
// markers excluded. It owns its backing array and stays valid after further
// Push calls.
type RawFrame []byte

// Framer reassembles delimiter-framed messages from an arbitrarily chunked
// byte stream. Bytes outside a start/end marker pair are noise and get
// dropped, which also resynchronizes the stream after a partial read.
//
// Framer is not safe for concurrent use; the client owns one per connection.
type Framer struct {
	buf []byte
	max int
}

// NewFramer returns a framer whose reassembly buffer holds at most maxBytes
// of pending data. maxBytes <= 0 selects the default ceiling.
func NewFramer(maxBytes int) *Framer {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBufferBytes
	}

	return &Framer{max: maxBytes}
}

// Push appends chunk to the pending buffer and returns every frame that is
// now complete, in stream order. Chunk boundaries are irrelevant: a marker
// split across reads is recognized once its remaining bytes arrive.
//
// If the pending buffer exceeds the ceiling without a frame completing, the
// buffered bytes are discarded and Push reports ErrBufferOverflow alongside
// any frames completed by this chunk. The framer remains usable afterwards.
func (f *Framer) Push(chunk []byte) ([]RawFrame, error) {
	f.buf = append(f.buf, chunk...)

	var frames []RawFrame

	for {
		start := bytes.Index(f.buf, startMarkerBytes)
		if start < 0 {
			// No frame in sight. Keep only a tail short enough to be a
			// split start marker; the rest is noise.
			f.dropNoise()
			break
		}

		if start > 0 {
			f.buf = f.buf[start:]
		}

		end := bytes.Index(f.buf[len(startMarkerBytes):], endMarkerBytes)
		if end < 0 {
			break
		}

		interior := f.buf[len(startMarkerBytes) : len(startMarkerBytes)+end]

		// Copy out so the frame survives buffer reuse on later pushes.
		frame := make(RawFrame, len(interior))
		copy(frame, interior)

		frames = append(frames, frame)

		f.buf = f.buf[len(startMarkerBytes)+end+len(endMarkerBytes):]
	}

	if len(f.buf) > f.max {
		discarded := len(f.buf)
		f.buf = nil

		return frames, fmt.Errorf("%w: discarded %d buffered bytes", ErrBufferOverflow, discarded)
	}

	return frames, nil
}

// Buffered reports how many bytes are waiting for a frame to complete.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// dropNoise discards buffered bytes that cannot belong to a frame, keeping
// at most len(StartMarker)-1 trailing bytes in case a start marker is split
// across reads.
func (f *Framer) dropNoise() {
	keep := len(startMarkerBytes) - 1
	if len(f.buf) <= keep {
		return
	}

	tail := f.buf[len(f.buf)-keep:]
	f.buf = append(f.buf[:0], tail...)
}
