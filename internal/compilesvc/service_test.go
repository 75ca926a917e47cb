package compilesvc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/seqsweep/internal/compiler"
	"github.com/banshee-data/seqsweep/internal/config"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

type memStore struct {
	plans []*compiler.Plan
	err   error
}

func (m *memStore) InsertPlan(_ *config.SweepDefinition, plan *compiler.Plan) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.plans = append(m.plans, plan)
	return "plan-1", nil
}

func startServer(t *testing.T, srv CompilerServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterCompilerServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	client, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCompileOverGRPC(t *testing.T) {
	store := &memStore{}
	client := startServer(t, NewServer(store))

	plan, id, err := client.Compile(context.Background(), config.MustLoadExample())
	require.NoError(t, err)
	assert.Equal(t, "plan-1", id)
	assert.Equal(t, "rabi", plan.Sequence)
	assert.Equal(t, []int{5, 4}, plan.Shape)
	assert.Equal(t, sweep.StrategyParametrized, plan.Axes[0].Strategy)
	assert.Equal(t, []int{1, 0}, plan.NestingOrder)
	require.Len(t, store.plans, 1)
	assert.Equal(t, store.plans[0].Program, plan.Program)
}

func TestCompileKeepsMultiParameterAxisOrder(t *testing.T) {
	client := startServer(t, NewServer(nil))
	def, err := config.Parse([]byte(`{
		"sequence": "s",
		"parameters": {"b": {}, "a": {}},
		"sweeps": [{"b": [0, 1, 5], "a": [2, 3, 4]}]
	}`))
	require.NoError(t, err)

	plan, id, err := client.Compile(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, []string{"s_b", "s_a"}, plan.Axes[0].Parameters)
}

func TestCompileErrorCodes(t *testing.T) {
	client := startServer(t, NewServer(nil))
	testCases := []struct {
		name string
		json string
		code codes.Code
	}{
		{"invalid_definition", `{"element": "P1"}`, codes.InvalidArgument},
		{"unknown_parameter", `{"sequence": "s", "sweeps": [{"x": [1, 2]}]}`, codes.InvalidArgument},
		{"mismatched_lengths", `{"sequence": "s", "parameters": {"a": {}, "b": {}}, "sweeps": [{"a": [1, 2], "b": [1]}]}`, codes.InvalidArgument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Decoded without validation so invalid definitions reach the server.
			var def config.SweepDefinition
			require.NoError(t, json.Unmarshal([]byte(tc.json), &def))
			_, _, err := client.Compile(context.Background(), &def)
			assert.Equal(t, tc.code, status.Code(err), "err = %v", err)
		})
	}
}

func TestStoreFailureIsInternal(t *testing.T) {
	client := startServer(t, NewServer(&memStore{err: errors.New("disk full")}))
	_, _, err := client.Compile(context.Background(), config.MustLoadExample())
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestToStatus(t *testing.T) {
	testCases := []struct {
		err  error
		code codes.Code
	}{
		{sweep.ErrInvalidType, codes.InvalidArgument},
		{sweep.ErrInvalidValue, codes.InvalidArgument},
		{sweep.ErrInvalidState, codes.FailedPrecondition},
		{sweep.ErrOwnership, codes.PermissionDenied},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.code, status.Code(toStatus(tc.err)), "%v", tc.err)
	}
}

func TestServerCompileDirect(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"sequence": "s"})
	require.NoError(t, err)
	out, err := NewServer(nil).Compile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "s", out.AsMap()["sequence"])
	assert.Equal(t, float64(1), out.AsMap()["size"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewServer(nil).Compile(ctx, req)
	assert.Equal(t, codes.Canceled, status.Code(err))
}
