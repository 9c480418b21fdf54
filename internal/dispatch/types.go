package dispatch

import "github.com/vientofactory/lawcast-backend/internal/notice"

// DeliveryResult is the outcome of one endpoint send within a notice's job.
type DeliveryResult struct {
	EndpointID   int64
	Success      bool
	Error        string
	ShouldDelete bool
}

// Result is the aggregate outcome of dispatching one notice.
type Result struct {
	Notice            notice.Notice
	TotalEndpoints    int
	SuccessCount      int
	FailedCount       int
	Deactivated       []int64
	TemporaryFailures int
}
