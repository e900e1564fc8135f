package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/rendercore/backend"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ResultCode
	}{
		{"nil", nil, ResultOK},
		{"lost", fmt.Errorf("present: %w", backend.ErrDeviceLost), ResultRetry},
		{"not reset", backend.ErrDeviceNotReset, ResultRetry},
		{"driver internal", backend.ErrDriverInternal, ResultRetry},
		{"out of memory", backend.ErrOutOfMemory, ResultFatal},
		{"already kind", fmt.Errorf("wrapped: %w", ErrPresent), ResultFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := classify(tt.err, ErrPresent)
			if res.Code != tt.want {
				t.Fatalf("classify(%v).Code = %v, want %v", tt.err, res.Code, tt.want)
			}
			if res.Fatal() && !errors.Is(res.Err, ErrPresent) {
				t.Errorf("fatal result %v does not wrap %v", res.Err, ErrPresent)
			}
			if tt.err != nil && !errors.Is(res.Err, tt.err) {
				t.Errorf("result %v lost the cause %v", res.Err, tt.err)
			}
		})
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{ok(), "ok"},
		{retry(nil), "retry"},
		{fatal(ErrDestroyed), "fatal: device: destroyed"},
		{Result{Code: ResultCode(7)}, "ResultCode(7)"},
	}
	for _, tt := range tests {
		if got := tt.res.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
