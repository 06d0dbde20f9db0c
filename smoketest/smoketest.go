package smoketest

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"reflect"
	"time"

	"github.com/aukilabs/blobtree/geometry"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeStepFailed = "smoke_test_step_failed"
)

type Options struct {
	// The store where the smoke test layer is created.
	Layers *models.LayerStore

	// Called with the results of each run. Optional.
	SendResult func(context.Context, Results) error
}

// Results reports a smoke test run.
type Results struct {
	LayerID         string       `json:"layer_id"`
	Succeeded       bool         `json:"succeeded"`
	LatencyMilliSec float64      `json:"latency_ms"`
	Steps           []StepResult `json:"steps"`
}

type StepResult struct {
	Name            string  `json:"name"`
	Succeeded       bool    `json:"succeeded"`
	Error           string  `json:"error,omitempty"`
	LatencyMilliSec float64 `json:"latency_ms"`
}

var (
	scenarioBounds = geometry.NewBox(0, 10, 0, 10, 0, 10)

	pointA = geometry.NewPoint(1, 1, 1)
	boxA   = geometry.NewBox(0, 2, 0, 2, 0, 2)
	pointB = geometry.NewPoint(5, 5, 5)
	boxB   = geometry.NewBox(4, 6, 4, 6, 4, 6)
)

// Run plays the reference scenario against a temporary layer of the store.
// The layer is removed once the run is over.
func Run(ctx context.Context, layers *models.LayerStore) (Results, error) {
	start := time.Now()

	l, err := layers.Create("smoketest", scenarioBounds)
	if err != nil {
		return Results{}, errors.New("creating smoke test layer failed").Wrap(err)
	}
	defer func() {
		if err := layers.Remove(l.ID); err != nil {
			logs.WithTag("layer_id", l.ID).Warn(err)
		}
	}()

	res := Results{LayerID: l.ID}
	runStep := func(name string, step func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		stepStart := time.Now()
		err := step()

		r := StepResult{
			Name:            name,
			Succeeded:       err == nil,
			LatencyMilliSec: milliseconds(time.Since(stepStart)),
		}
		if err != nil {
			r.Error = err.Error()
		}
		res.Steps = append(res.Steps, r)
		return err
	}

	err = runScenario(l, runStep)
	res.Succeeded = err == nil
	res.LatencyMilliSec = milliseconds(time.Since(start))
	return res, err
}

func runScenario(l *models.Layer, runStep func(string, func() error) error) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{
			name: "insert entries",
			run: func() error {
				if err := l.Insert(pointA, boxA, "a"); err != nil {
					return err
				}
				return l.Insert(pointB, boxB, "b")
			},
		},
		{
			name: "count entries",
			run: func() error {
				if n := l.Len(); n != 2 {
					return stepFailed("unexpected entry count", 2, n)
				}
				return nil
			},
		},
		{
			name: "query lower box",
			run: func() error {
				return expectEntries(l, geometry.NewBox(0, 3, 0, 3, 0, 3), octree.Entry[any]{
					Point:  pointA,
					Bounds: boxA,
					Data:   "a",
				})
			},
		},
		{
			name: "query middle box",
			run: func() error {
				return expectEntries(l, geometry.NewBox(3, 7, 3, 7, 3, 7), octree.Entry[any]{
					Point:  pointB,
					Bounds: boxB,
					Data:   "b",
				})
			},
		},
		{
			name: "reject duplicate insert",
			run: func() error {
				err := l.Insert(pointA, boxA, "a")
				if !errors.IsType(err, octree.ErrTypeDuplicateKey) {
					return stepFailed("duplicate insert was not rejected", octree.ErrTypeDuplicateKey, err)
				}
				return nil
			},
		},
		{
			name: "update entry",
			run: func() error {
				if err := l.Update(pointA, geometry.NewBox(0, 1, 0, 1, 0, 1), "a2"); err != nil {
					return err
				}

				e, ok := l.Get(pointA)
				if !ok || e.Data != "a2" {
					return stepFailed("update is not visible", "a2", e.Data)
				}
				if n := l.Len(); n != 2 {
					return stepFailed("unexpected entry count", 2, n)
				}
				return nil
			},
		},
	}

	for _, s := range steps {
		if err := runStep(s.name, s.run); err != nil {
			return errors.New("smoke test failed").
				WithTag("step", s.name).
				Wrap(err)
		}
	}
	return nil
}

func expectEntries(l *models.Layer, q geometry.Box, expected ...octree.Entry[any]) error {
	entries := l.Collect(models.QueryBox, func(idx *octree.Index[any]) iter.Seq[octree.Entry[any]] {
		return idx.IntersectWithBox(q)
	})
	if !reflect.DeepEqual(entries, expected) {
		return errors.New("unexpected query results").
			WithType(ErrTypeStepFailed).
			WithTag("query", q.String()).
			WithTag("expected", fmt.Sprint(expected)).
			WithTag("got", fmt.Sprint(entries))
	}
	return nil
}

func stepFailed(msg string, expected, got any) error {
	return errors.New(msg).
		WithType(ErrTypeStepFailed).
		WithTag("expected", fmt.Sprint(expected)).
		WithTag("got", fmt.Sprint(got))
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// HandleSmokeTest runs the smoke test and responds with its results.
func HandleSmokeTest(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		res, err := Run(ctx, opts.Layers)
		if err != nil {
			logs.WithTag("layer_id", res.LayerID).
				WithTag("steps", len(res.Steps)).
				Warn(err)
		}

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("layer_id", res.LayerID).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}

		b, err := json.Marshal(res)
		if err != nil {
			httpcmn.InternalServerError(w, errors.New("encoding smoke test result failed").Wrap(err))
			return
		}

		status := http.StatusOK
		if !res.Succeeded {
			status = http.StatusInternalServerError
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}
