// SPDX-License-Identifier: AGPL-3.0-or-later

package runtime

import (
	"context"
	"strings"
	"testing"
)

func TestDocker_CreateVolume_NamesAreUnique(t *testing.T) {
	d := &Docker{Bin: "/bin/true"}
	a, err := d.CreateVolume(context.Background())
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	b, err := d.CreateVolume(context.Background())
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct volume names, got %q twice", a)
	}
	if !strings.HasPrefix(a, "osprei-") {
		t.Errorf("volume name %q missing osprei- prefix", a)
	}
}

func TestDocker_RunStage_NonZeroExitIsNotAnError(t *testing.T) {
	d := &Docker{Bin: "/bin/false"}
	result, err := d.RunStage(context.Background(), StageSpec{Image: "irrelevant", Command: []string{"x"}})
	if err != nil {
		t.Fatalf("RunStage returned error for a container-level failure: %v", err)
	}
	if result.ExitCode == 0 {
		t.Errorf("expected non-zero exit code from /bin/false")
	}
}

func TestDocker_RunStage_MissingBinaryIsRuntimeError(t *testing.T) {
	d := &Docker{Bin: "osprei-definitely-not-a-real-binary"}
	_, err := d.RunStage(context.Background(), StageSpec{Image: "irrelevant"})
	if err == nil {
		t.Fatal("expected an error when the docker binary cannot be found")
	}
}
