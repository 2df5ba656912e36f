package mcp

import "context"

// transport is the variant interface implemented by the stdio and
// streamable-HTTP connection kinds (§4.5).
type transport interface {
	Initialize(ctx context.Context) (HandshakeCapabilities, error)
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)
	Close() error
}

func newTransport(params ConnectParams) (transport, error) {
	switch params.Transport {
	case TransportStdio:
		return newStdioTransport(params)
	case TransportStreamableHTTP:
		return newHTTPTransport(params), nil
	default:
		return nil, errUnsupportedTransport(params.Transport)
	}
}

type unsupportedTransportError struct{ kind TransportKind }

func (e unsupportedTransportError) Error() string {
	return "unsupported MCP transport: " + string(e.kind)
}

func errUnsupportedTransport(kind TransportKind) error {
	return unsupportedTransportError{kind: kind}
}
