// Package http implements an HTTP based transport for the RPC layer of dMX.
// Every frame becomes one POST request to /{groupID}; the request body is the
// serialized message and the response body is the serialized reply.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Selects the
//     endpoint round robin and retries failed requests.
//
//   - httpServerTransport: Implements IRPCServerTransport on top of
//     http.Server. Close shuts the server down gracefully. With log level
//     "debug" every request is logged with its status and duration.
//
// The client transport is safe for concurrent use once Connect returned.
package http
