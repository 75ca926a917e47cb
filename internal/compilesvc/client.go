package compilesvc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/seqsweep/internal/compiler"
	"github.com/banshee-data/seqsweep/internal/config"
)

// Client calls a remote seqsweep.v1.Compiler.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// NewClient connects to the compiler service at addr without TLS.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Compile sends def to the service and returns the plan and, when the
// server stores plans, its id.
func (c *Client) Compile(ctx context.Context, def *config.SweepDefinition) (*compiler.Plan, string, error) {
	doc, err := definitionDocument(def)
	if err != nil {
		return nil, "", err
	}
	in, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, "", fmt.Errorf("encode definition: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, compileMethod, in, out); err != nil {
		return nil, "", err
	}
	resp := out.AsMap()
	id, _ := resp["plan_id"].(string)
	delete(resp, "plan_id")
	plan, err := compiler.PlanFromDocument(resp)
	if err != nil {
		return nil, "", err
	}
	return plan, id, nil
}

// definitionDocument converts def into a generic document. Axes are written
// as arrays of {"param", "setpoints"} entries because Struct fields do not
// keep their order.
func definitionDocument(def *config.SweepDefinition) (map[string]any, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(def.Sweeps) == 0 {
		return doc, nil
	}
	axes := make([][]config.AxisEntry, len(def.Sweeps))
	for i, a := range def.Sweeps {
		axes[i] = []config.AxisEntry(a)
	}
	raw, err := json.Marshal(axes)
	if err != nil {
		return nil, fmt.Errorf("encode sweeps: %w", err)
	}
	var sweeps any
	if err := json.Unmarshal(raw, &sweeps); err != nil {
		return nil, err
	}
	doc["sweeps"] = sweeps
	return doc, nil
}
