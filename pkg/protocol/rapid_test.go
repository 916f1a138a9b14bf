package protocol

import (
	"bytes"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func drawFrame(t *rapid.T, label string) Frame {
	msgType := rapid.Int32().Draw(t, label+"Type")
	payloadLen := rapid.IntRange(0, 2048).Draw(t, label+"PayloadLen")
	payload := rapid.SliceOfN(rapid.Byte(), payloadLen, payloadLen).Draw(t, label+"Payload")
	return Frame{Type: msgType, Payload: payload}
}

// TestFrameRoundTrip tests that any valid frame can be encoded and decoded
func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := drawFrame(t, "")

		data, err := EncodeMessage(want.Type, want.Payload)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, n, err := DecodeOne(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if n != len(data) {
			t.Fatalf("consumed %d bytes, want %d", n, len(data))
		}
		if decoded.Type != want.Type {
			t.Fatalf("type mismatch: got %d, want %d", decoded.Type, want.Type)
		}
		if !bytes.Equal(decoded.Payload, want.Payload) {
			t.Fatalf("payload mismatch")
		}
	})
}

// TestPartialFrameNeedsMoreData tests that every strict prefix of a frame is
// reported as incomplete, never invalid and never as a frame
func TestPartialFrameNeedsMoreData(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := drawFrame(t, "")
		data, err := EncodeMessage(want.Type, want.Payload)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		cut := rapid.IntRange(1, len(data)-1).Draw(t, "cut")
		_, n, err := DecodeOne(data[:cut])
		if !errors.Is(err, ErrNeedMoreData) {
			t.Fatalf("prefix of %d/%d bytes: got %v, want ErrNeedMoreData", cut, len(data), err)
		}
		if n != 0 {
			t.Fatalf("prefix consumed %d bytes", n)
		}
	})
}

// TestStickyPacketRecombination tests that two concatenated frames delivered
// in arbitrary chunks decode to exactly the two frames in order
func TestStickyPacketRecombination(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := []Frame{drawFrame(t, "first"), drawFrame(t, "second")}

		var stream []byte
		for _, f := range frames {
			data, err := EncodeMessage(f.Type, f.Payload)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			stream = append(stream, data...)
		}

		var (
			buf     []byte
			decoded []Frame
		)
		for len(stream) > 0 {
			chunk := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			buf = append(buf, stream[:chunk]...)
			stream = stream[chunk:]

			for {
				frame, n, err := DecodeOne(buf)
				if errors.Is(err, ErrNeedMoreData) {
					break
				}
				if err != nil {
					t.Fatalf("unexpected decode error: %v", err)
				}
				decoded = append(decoded, frame)
				buf = buf[n:]
			}
		}

		if len(buf) != 0 {
			t.Fatalf("%d bytes left over", len(buf))
		}
		if len(decoded) != len(frames) {
			t.Fatalf("decoded %d frames, want %d", len(decoded), len(frames))
		}
		for i := range frames {
			if decoded[i].Type != frames[i].Type || !bytes.Equal(decoded[i].Payload, frames[i].Payload) {
				t.Fatalf("frame %d mismatch", i)
			}
		}
	})
}

// TestFixedStringRoundTrip tests that strings shorter than the field survive
// and longer ones are truncated to leave a terminator
func TestFixedStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Z0-9_ ]{0,64}`).Draw(t, "s")

		field := make([]byte, UsernameSize)
		PutFixedString(field, s)
		got := ReadFixedString(field)

		want := s
		if len(want) > UsernameSize-1 {
			want = want[:UsernameSize-1]
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if field[UsernameSize-1] != 0 {
			t.Fatalf("field has no terminator")
		}
	})
}
