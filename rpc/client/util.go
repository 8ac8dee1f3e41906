package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/primitives"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation if an RPC client
// Used by the RPCLockMgr with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and waits for the response. Non-blocking requests are
// bounded by the configured client timeout, blocking requests by ctx only.
func (c *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	if !req.MsgType.Blocking() && c.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.config.TimeoutSecond)*time.Second)
		defer cancel()
	}
	return invokeRPCRequest(ctx, c.shardId, req, c.transport, c.serializer)
}

// invokeGrant sends a request that may grant a lock or a semaphore slot. If ctx
// ends before the response arrives, the request keeps running in the background
// and a late grant is given back with the release request.
func (c *rpcClientAdapter) invokeGrant(ctx context.Context, req, release *common.Message) (*common.Message, error) {
	// Fast path, the context can not end
	if ctx.Done() == nil {
		return c.invoke(ctx, req)
	}

	type result struct {
		resp *common.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.invoke(context.WithoutCancel(ctx), req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
	}

	go func() {
		r := <-done
		if r.err != nil || !granted(r.resp) {
			return
		}
		Logger.Debugf("Giving back late grant of %s on %q", req.MsgType, req.Key)
		if _, err := c.invoke(context.WithoutCancel(ctx), release); err != nil {
			Logger.Warningf("Failed to give back late grant of %s on %q: %v", req.MsgType, req.Key, err)
		}
	}()
	return nil, ctx.Err()
}

// granted reports whether a successful response of a grant request holds the grant
func granted(resp *common.Message) bool {
	switch resp.MsgType {
	case common.MsgTMtxTryLockFor, common.MsgTMtxTryLockSharedFor, common.MsgTSemTryAcquireFor:
		return resp.Ok
	default:
		return true
	}
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
func invokeRPCRequest(ctx context.Context, shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(ctx, shardId, reqBytes)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// The connection and with it every lock of this client is gone
		return nil, primitives.NewError(primitives.RetCClosed, err.Error())
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, fmt.Errorf("RPC LockMgrAdapter - Error: %w", err)
	}

	// Check if the response is an error response
	if err := resp.Error(); err != nil {
		return nil, err
	}
	if resp.MsgType == common.MsgTError {
		return nil, primitives.NewError(primitives.RetCInternalError, "unknown server error")
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC LockMgrAdapter - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
