package worker

import "context"

func ProcessOne(ctx context.Context, w *Worker) (bool, error) {
	return w.processOne(ctx)
}
