package fetcher

import (
	"context"
	"net"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		statusCode     int
		isRedirectLoop bool
		want           ErrorCategory
	}{
		{
			name:           "redirect loop",
			isRedirectLoop: true,
			want:           CategoryRedirectLoop,
		},
		{
			name:       "4xx status",
			statusCode: 404,
			want:       Category4xx,
		},
		{
			name:       "5xx status",
			statusCode: 500,
			want:       Category5xx,
		},
		{
			name: "timeout error",
			err:  context.DeadlineExceeded,
			want: CategoryTimeout,
		},
		{
			name: "no error no status",
			want: CategoryUnknown,
		},
		{
			name:       "3xx status is unknown",
			statusCode: 301,
			want:       CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err, tt.statusCode, tt.isRedirectLoop)
			if got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyError_DNSFailure(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "example.invalid"}

	got := ClassifyError(dnsErr, 0, false)
	if got != CategoryDNSFailure {
		t.Errorf("ClassifyError(DNSError) = %v, want %v", got, CategoryDNSFailure)
	}
}
