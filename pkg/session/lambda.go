package session

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// deadlineBuffer is how much of the invocation deadline is reserved for
// response marshaling and cleanup.
const deadlineBuffer = time.Second

// IsLambda reports whether the process is running inside AWS Lambda.
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// WithInvocationDeadline derives a context that expires shortly before the
// Lambda invocation deadline, so in-flight store calls fail in-process
// instead of being killed by the runtime. Outside Lambda, or without a
// deadline, the context is returned unchanged.
func WithInvocationDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := lambdacontext.FromContext(ctx); !ok {
		return ctx, func() {}
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline.Add(-deadlineBuffer))
}
