package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}, order)
}

func TestLogging_RecordsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	errFail := errors.New("fail")
	ep := Logging(logger, "extract")(func(context.Context, any) (any, error) { return nil, errFail })

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "req_1")
	_, err := ep(ctx, nil)

	assert.ErrorIs(t, err, errFail)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "transport=mcp")
	assert.Contains(t, buf.String(), "request_id=req_1")
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "http", GetTransport(ctx))
	assert.Empty(t, GetRequestID(ctx))
}
