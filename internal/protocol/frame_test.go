package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeFrameRoundTrip(t *testing.T) {
	want := []byte{0x02, 0x00, 0x00, 0x00, 0x2a, 0x00, 0x20, 0xdf, 0x01, 0x02}

	got, err := EncodeFrame(42, ErrMsg, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeFrame(42, 0x20, [1 2]) = % x, want % x", got, want)
	}

	var p Parser
	frames, err := p.Feed(got)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.PID != 42 || f.Type != ErrMsg || !bytes.Equal(f.Payload, []byte{0x01, 0x02}) {
		t.Errorf("parsed frame = %+v, want pid=42 type=0x20 payload=[1 2]", f)
	}
}

func TestEncodeFrameRejectsOversizePayload(t *testing.T) {
	_, err := EncodeFrame(1, ReqInsert, make([]byte, MaxPackageSize+1))
	if err == nil {
		t.Error("expected error for oversize payload")
	}
}

func TestParserBuffersPartialFrame(t *testing.T) {
	full, err := EncodeFrame(7, ReqPing, nil)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var p Parser
	frames, err := p.Feed(full[:4])
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames from a partial header, got %d", len(frames))
	}

	frames, err = p.Feed(full[4:])
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 || frames[0].PID != 7 {
		t.Fatalf("expected 1 frame with pid 7, got %+v", frames)
	}
}

func TestParserEmitsMultipleFramesFromOneRead(t *testing.T) {
	a, _ := EncodeFrame(1, ReqPing, nil)
	b, _ := EncodeFrame(2, ReqPing, nil)

	var p Parser
	frames, err := p.Feed(append(a, b...))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].PID != 1 || frames[1].PID != 2 {
		t.Errorf("frames out of order: %+v", frames)
	}
}

func TestParserRejectsBadCheckBit(t *testing.T) {
	full, _ := EncodeFrame(1, ReqPing, nil)
	full[7] ^= 0xFF // corrupt the check byte

	var p Parser
	_, err := p.Feed(full)
	if err == nil {
		t.Error("expected error for bad check bit")
	}
}

func TestParserRejectsOversizeLength(t *testing.T) {
	header := make([]byte, HeaderSize)
	header[3] = 0xFF // length field way above MaxPackageSize
	header[6] = byte(ReqPing)
	header[7] = byte(ReqPing) ^ 0xFF

	var p Parser
	_, err := p.Feed(header)
	if err == nil {
		t.Error("expected error for oversize length")
	}
}
