package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Anshjain123/Code-N-Collab/protocol"
)

const DefaultQueueKey = "codencollab:compile"

// Job is what travels through the redis list.
type Job struct {
	ID      string                  `json:"id"`
	Request protocol.CompileRequest `json:"request"`
	ReplyTo string                  `json:"replyTo"`
}

// Queue is an Executor that hands runs to Workers through redis: jobs are
// pushed onto a list and each answer comes back on a pub/sub channel
// private to the job.
type Queue struct {
	rdb *redis.Client
	key string
}

func NewQueue(rdb *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{rdb: rdb, key: key}
}

func (q *Queue) Execute(ctx context.Context, req protocol.CompileRequest) protocol.CompileResponse {
	resp, err := q.execute(ctx, req)
	if err != nil {
		glog.Warningf("[runner]queue: %v", err)
		return protocol.CompileResponse{Error: "execution service unavailable"}
	}
	return resp
}

func (q *Queue) execute(ctx context.Context, req protocol.CompileRequest) (protocol.CompileResponse, error) {
	job := Job{ID: ulid.Make().String(), Request: req}
	job.ReplyTo = q.key + ":result:" + job.ID

	sub := q.rdb.Subscribe(ctx, job.ReplyTo)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return protocol.CompileResponse{}, fmt.Errorf("subscribe %s: %w", job.ReplyTo, err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return protocol.CompileResponse{}, err
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return protocol.CompileResponse{}, fmt.Errorf("push job %s: %w", job.ID, err)
	}
	glog.V(1).Infof("[runner]queued job %s (%s)", job.ID, req.Language)

	select {
	case msg, ok := <-sub.Channel():
		if !ok {
			return protocol.CompileResponse{}, errors.New("result channel closed")
		}
		var resp protocol.CompileResponse
		if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
			return protocol.CompileResponse{}, fmt.Errorf("decode result %s: %w", job.ID, err)
		}
		return resp, nil
	case <-ctx.Done():
		return protocol.CompileResponse{}, fmt.Errorf("job %s: %w", job.ID, ctx.Err())
	}
}

// Worker pops jobs from the queue and runs them with an Executor.
type Worker struct {
	rdb  *redis.Client
	key  string
	exec Executor
	// Poll is how long one BRPOP blocks before checking for shutdown.
	Poll time.Duration
}

func NewWorker(rdb *redis.Client, key string, exec Executor) *Worker {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Worker{rdb: rdb, key: key, exec: exec, Poll: 5 * time.Second}
}

// Run starts n consumers and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context, n int) {
	var wg sync.WaitGroup
	for i := 0; i < max(n, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) consume(ctx context.Context) {
	for ctx.Err() == nil {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		err := backoff.Retry(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := w.once(ctx)
			if err != nil && ctx.Err() == nil {
				glog.Warningf("[runner]worker: %v", err)
			}
			return err
		}, backoff.WithContext(b, ctx))
		if err != nil && ctx.Err() == nil {
			glog.Errorf("[runner]worker gave up: %v", err)
		}
	}
}

func (w *Worker) once(ctx context.Context) error {
	res, err := w.rdb.BRPop(ctx, w.Poll, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pop %s: %w", w.key, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		glog.Errorf("[runner]dropping malformed job: %v", err)
		return nil
	}
	started := time.Now()
	resp := w.exec.Execute(ctx, job.Request)
	glog.V(1).Infof("[runner]job %s done in %s", job.ID, time.Since(started))

	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := w.rdb.Publish(ctx, job.ReplyTo, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", job.ID, err)
	}
	return nil
}
