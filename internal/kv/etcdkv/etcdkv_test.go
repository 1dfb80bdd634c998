package etcdkv

import (
	"bytes"
	"testing"
)

func TestOpen_RequiresAtLeastOneEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error when Config.Endpoints is empty")
	}
}

func TestVersionstampFromRevision_PreservesOrder(t *testing.T) {
	t.Parallel()

	low := versionstampFromRevision(1)
	high := versionstampFromRevision(2)
	higher := versionstampFromRevision(1 << 40)

	if !low.Less(high) {
		t.Errorf("versionstampFromRevision(1) should sort before versionstampFromRevision(2)")
	}
	if !high.Less(higher) {
		t.Errorf("versionstampFromRevision(2) should sort before versionstampFromRevision(1<<40)")
	}
}

func TestVersionstampFromRevision_LeavesFirstTwoBytesZero(t *testing.T) {
	t.Parallel()

	vs := versionstampFromRevision(42)
	if !bytes.Equal(vs[:2], []byte{0, 0}) {
		t.Errorf("expected the first two bytes reserved/zero, got %v", vs[:2])
	}
}
