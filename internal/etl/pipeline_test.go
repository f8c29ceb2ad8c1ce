package etl

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BartekS5/storefront-etl/internal/dag"
	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	srv    *httptest.Server
	bodies map[string]string
	status map[string]int
	hits   map[string]*int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{
		bodies: map[string]string{
			"/users":    `{"users":[{"id":1,"firstName":"A","lastName":"B","gender":"f","age":2,"address":{"address":"s","city":"c","postalCode":"p"}}]}`,
			"/products": `{"products":[{"id":1,"title":"cheap","category":"c","brand":"b","price":5},{"id":2,"title":"dear","category":"c","brand":"b","price":75}]}`,
			"/carts":    `{"carts":[{"id":1,"userId":1,"products":[{"id":2,"title":"dear","quantity":2,"price":75}]}]}`,
		},
		status: map[string]int{},
		hits:   map[string]*int32{"/users": new(int32), "/products": new(int32), "/carts": new(int32)},
	}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := u.hits[r.URL.Path]; ok {
			atomic.AddInt32(h, 1)
		}
		if code := u.status[r.URL.Path]; code != 0 {
			w.WriteHeader(code)
			return
		}
		io.WriteString(w, u.bodies[r.URL.Path])
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) endpoints() map[string]string {
	return map[string]string{
		"users":    u.srv.URL + "/users",
		"products": u.srv.URL + "/products",
		"carts":    u.srv.URL + "/carts",
	}
}

func newTestPipeline(t *testing.T, u *upstream, opts PipelineOptions) (*Pipeline, *SQLWarehouse) {
	t.Helper()
	store := newMemStore()
	w := newSQLiteWarehouse(t)
	if opts.CSVDir == "" {
		opts.CSVDir = t.TempDir()
	}
	if opts.Tables == nil {
		opts.Tables = map[models.Entity]TableTarget{}
		for _, e := range models.Entities {
			opts.Tables[e] = TableTarget{
				TableID: "proj.shop." + e.String() + "_table",
				Options: LoadOptions{Mode: SchemaExplicit, Schema: DefaultSchema(e)},
			}
		}
	}
	p := NewPipeline(NewFetcher(u.endpoints(), store, time.Second), NewTransformer(store), NewLoader(w), opts)
	return p, w
}

func TestPipelineGraph_DefaultIsLinearChain(t *testing.T) {
	p, _ := newTestPipeline(t, newUpstream(t), PipelineOptions{})
	g, err := p.Graph()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"fetch_users"}, {"fetch_products"}, {"fetch_carts"}, {"transform_products"}, {"load_products"},
	}, g.Levels())
}

func TestPipelineGraph_TransformHardDependsOnOwnFetchOnly(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		p, _ := newTestPipeline(t, newUpstream(t), PipelineOptions{ParallelFetch: parallel})
		dependsOn, after := p.transformUpstream(models.Products, []string{"fetch_users", "fetch_products", "fetch_carts"})
		require.Equal(t, []string{"fetch_products"}, dependsOn)
		if parallel {
			require.Equal(t, []string{"fetch_users", "fetch_carts"}, after)
		} else {
			require.Equal(t, []string{"fetch_carts"}, after)
		}
	}
}

func TestPipelineGraph_ParallelFetchFansIn(t *testing.T) {
	p, _ := newTestPipeline(t, newUpstream(t), PipelineOptions{
		ParallelFetch: true,
		Entities:      []models.Entity{models.Products, models.Carts},
	})
	g, err := p.Graph()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"fetch_users", "fetch_products", "fetch_carts"},
		{"transform_products", "transform_carts"},
		{"load_products", "load_carts"},
	}, g.Levels())
}

func TestPipelineGraph_MissingTableIsConfigurationError(t *testing.T) {
	p, _ := newTestPipeline(t, newUpstream(t), PipelineOptions{Tables: map[models.Entity]TableTarget{}})
	_, err := p.Graph()
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestPipelineRun_LoadsFilteredProducts(t *testing.T) {
	u := newUpstream(t)
	p, w := newTestPipeline(t, u, PipelineOptions{Retries: 1})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Report.Failed())
	require.Len(t, res.RunID, 36)

	var n int
	require.NoError(t, w.DB.QueryRow(`SELECT COUNT(*) FROM "shop_products_table"`).Scan(&n))
	require.Equal(t, 1, n)
	require.FileExists(t, p.CSVPath(models.Products))
}

func TestPipelineRun_RetriesOnceAndSkipsDependents(t *testing.T) {
	u := newUpstream(t)
	u.status["/products"] = http.StatusServiceUnavailable
	p, _ := newTestPipeline(t, u, PipelineOptions{Retries: 1})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Report.Failed())

	fetch, _ := res.Report.Get("fetch_products")
	require.Equal(t, dag.StateFailed, fetch.State)
	require.Equal(t, 2, fetch.Attempts)
	require.ErrorIs(t, fetch.Err, ErrHTTPStatus)
	require.EqualValues(t, 2, atomic.LoadInt32(u.hits["/products"]))

	carts, _ := res.Report.Get("fetch_carts")
	require.Equal(t, dag.StateSucceeded, carts.State)
	require.EqualValues(t, 1, atomic.LoadInt32(u.hits["/carts"]))

	for _, name := range []string{"transform_products", "load_products"} {
		r, _ := res.Report.Get(name)
		require.Equal(t, dag.StateSkipped, r.State, name)
	}
}

func TestPipelineRun_FailedSiblingFetchStillLoadsProducts(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			u := newUpstream(t)
			u.status["/users"] = http.StatusServiceUnavailable
			p, w := newTestPipeline(t, u, PipelineOptions{Retries: 1, ParallelFetch: parallel})

			res, err := p.Run(context.Background())
			require.NoError(t, err)
			require.True(t, res.Report.Failed())

			users, _ := res.Report.Get("fetch_users")
			require.Equal(t, dag.StateFailed, users.State)
			require.Equal(t, 2, users.Attempts)

			for _, name := range []string{"fetch_products", "fetch_carts", "transform_products", "load_products"} {
				r, _ := res.Report.Get(name)
				require.Equal(t, dag.StateSucceeded, r.State, name)
			}

			var n int
			require.NoError(t, w.DB.QueryRow(`SELECT COUNT(*) FROM "shop_products_table"`).Scan(&n))
			require.Equal(t, 1, n)
		})
	}
}

func TestPipelineRun_SchemaErrorIsNotRetried(t *testing.T) {
	u := newUpstream(t)
	u.bodies["/products"] = `{"products":[{"id":1}]}`
	p, _ := newTestPipeline(t, u, PipelineOptions{Retries: 3})

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	r, _ := res.Report.Get("transform_products")
	require.Equal(t, dag.StateFailed, r.State)
	require.Equal(t, 1, r.Attempts)
	require.ErrorIs(t, r.Err, ErrSchema)
}
