package client

import (
	"context"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"sync"
	"time"
)

// NewRPCLockMgr creates a new RPC ILockManager
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a lockmgr.ILockManager and an error
//
// All primitives used through the returned lock manager belong to the
// connection of the transport. Closing the lock manager (or losing the
// connection) releases them on the server.
func NewRPCLockMgr(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC lock manager
	l := rpcLockMgr{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC lock manager
	return &l, nil
}

type rpcLockMgr struct {
	rpcClientAdapter
	closeOnce sync.Once
	closeErr  error
}

var _ lockmgr.ILockManager = (*rpcLockMgr)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (l *rpcLockMgr) Mutexes() lockmgr.IMutexes                       { return rpcMutexes{l} }
func (l *rpcLockMgr) Semaphores() lockmgr.ISemaphores                 { return rpcSemaphores{l} }
func (l *rpcLockMgr) ConditionVariables() lockmgr.IConditionVariables { return rpcConditions{l} }
func (l *rpcLockMgr) Barriers() lockmgr.IBarriers                     { return rpcBarriers{l} }
func (l *rpcLockMgr) Latches() lockmgr.ILatches                       { return rpcLatches{l} }

// Close closes the connection, the server releases everything it held
func (l *rpcLockMgr) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.transport.Close()
	})
	return l.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// call sends a request that only reports success or failure
func (l *rpcLockMgr) call(ctx context.Context, req *common.Message) error {
	_, err := l.invoke(ctx, req)
	return err
}

// try sends a request that answers with a bool
func (l *rpcLockMgr) try(ctx context.Context, req *common.Message) (bool, error) {
	resp, err := l.invoke(ctx, req)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// count sends a request that answers with a number
func (l *rpcLockMgr) count(ctx context.Context, req *common.Message) (int64, error) {
	resp, err := l.invoke(ctx, req)
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// grant sends a request that may grant something, release gives it back if the
// grant arrives after ctx ended
func (l *rpcLockMgr) grant(ctx context.Context, req, release *common.Message) (bool, error) {
	resp, err := l.invokeGrant(ctx, req, release)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// --------------------------------------------------------------------------
// Mutexes
// --------------------------------------------------------------------------

type rpcMutexes struct{ l *rpcLockMgr }

func (v rpcMutexes) Emplace(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTMtxEmplace, name))
}

func (v rpcMutexes) Erase(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTMtxErase, name))
}

func (v rpcMutexes) Lock(ctx context.Context, name string) error {
	_, err := v.l.grant(ctx, common.NewRequest(common.MsgTMtxLock, name), common.NewRequest(common.MsgTMtxUnlock, name))
	return err
}

func (v rpcMutexes) TryLock(ctx context.Context, name string) (bool, error) {
	return v.l.try(ctx, common.NewRequest(common.MsgTMtxTryLock, name))
}

func (v rpcMutexes) TryLockFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return v.l.grant(ctx, common.NewTimedRequest(common.MsgTMtxTryLockFor, name, timeout), common.NewRequest(common.MsgTMtxUnlock, name))
}

func (v rpcMutexes) Unlock(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTMtxUnlock, name))
}

func (v rpcMutexes) LockShared(ctx context.Context, name string) error {
	_, err := v.l.grant(ctx, common.NewRequest(common.MsgTMtxLockShared, name), common.NewRequest(common.MsgTMtxUnlockShared, name))
	return err
}

func (v rpcMutexes) TryLockShared(ctx context.Context, name string) (bool, error) {
	return v.l.try(ctx, common.NewRequest(common.MsgTMtxTryLockShared, name))
}

func (v rpcMutexes) TryLockSharedFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return v.l.grant(ctx, common.NewTimedRequest(common.MsgTMtxTryLockSharedFor, name, timeout), common.NewRequest(common.MsgTMtxUnlockShared, name))
}

func (v rpcMutexes) UnlockShared(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTMtxUnlockShared, name))
}

// --------------------------------------------------------------------------
// Semaphores
// --------------------------------------------------------------------------

type rpcSemaphores struct{ l *rpcLockMgr }

func (v rpcSemaphores) Emplace(ctx context.Context, name string, capacity int64) (int64, error) {
	return v.l.count(ctx, common.NewCountRequest(common.MsgTSemEmplace, name, capacity))
}

func (v rpcSemaphores) Erase(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTSemErase, name))
}

func (v rpcSemaphores) Acquire(ctx context.Context, name string) error {
	_, err := v.l.grant(ctx, common.NewRequest(common.MsgTSemAcquire, name), common.NewCountRequest(common.MsgTSemRelease, name, 1))
	return err
}

func (v rpcSemaphores) TryAcquire(ctx context.Context, name string) (bool, error) {
	return v.l.try(ctx, common.NewRequest(common.MsgTSemTryAcquire, name))
}

func (v rpcSemaphores) TryAcquireFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return v.l.grant(ctx, common.NewTimedRequest(common.MsgTSemTryAcquireFor, name, timeout), common.NewCountRequest(common.MsgTSemRelease, name, 1))
}

func (v rpcSemaphores) Release(ctx context.Context, name string, n int64) error {
	return v.l.call(ctx, common.NewCountRequest(common.MsgTSemRelease, name, n))
}

// --------------------------------------------------------------------------
// Condition Variables
// --------------------------------------------------------------------------

type rpcConditions struct{ l *rpcLockMgr }

func (v rpcConditions) Emplace(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTCVEmplace, name))
}

func (v rpcConditions) Erase(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTCVErase, name))
}

func (v rpcConditions) Wait(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTCVWait, name))
}

func (v rpcConditions) WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return v.l.try(ctx, common.NewTimedRequest(common.MsgTCVWaitFor, name, timeout))
}

func (v rpcConditions) NotifyOne(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTCVNotifyOne, name))
}

func (v rpcConditions) NotifyAll(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTCVNotifyAll, name))
}

// --------------------------------------------------------------------------
// Barriers
// --------------------------------------------------------------------------

type rpcBarriers struct{ l *rpcLockMgr }

func (v rpcBarriers) Emplace(ctx context.Context, name string, size int64) (int64, error) {
	return v.l.count(ctx, common.NewCountRequest(common.MsgTBarEmplace, name, size))
}

func (v rpcBarriers) Erase(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTBarErase, name))
}

func (v rpcBarriers) Arrive(ctx context.Context, name string, n int64) error {
	return v.l.call(ctx, common.NewCountRequest(common.MsgTBarArrive, name, n))
}

func (v rpcBarriers) ArriveAndWait(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTBarArriveAndWait, name))
}

func (v rpcBarriers) ArriveAndDrop(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTBarArriveAndDrop, name))
}

func (v rpcBarriers) Wait(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTBarWait, name))
}

func (v rpcBarriers) WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return v.l.try(ctx, common.NewTimedRequest(common.MsgTBarWaitFor, name, timeout))
}

// --------------------------------------------------------------------------
// Latches
// --------------------------------------------------------------------------

type rpcLatches struct{ l *rpcLockMgr }

func (v rpcLatches) Emplace(ctx context.Context, name string, count int64) (int64, error) {
	return v.l.count(ctx, common.NewCountRequest(common.MsgTLatEmplace, name, count))
}

func (v rpcLatches) Erase(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTLatErase, name))
}

func (v rpcLatches) CountDown(ctx context.Context, name string, n int64) error {
	return v.l.call(ctx, common.NewCountRequest(common.MsgTLatCountDown, name, n))
}

func (v rpcLatches) ArriveAndWait(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTLatArriveAndWait, name))
}

func (v rpcLatches) TryWait(ctx context.Context, name string) (bool, error) {
	return v.l.try(ctx, common.NewRequest(common.MsgTLatTryWait, name))
}

func (v rpcLatches) Wait(ctx context.Context, name string) error {
	return v.l.call(ctx, common.NewRequest(common.MsgTLatWait, name))
}

func (v rpcLatches) WaitFor(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return v.l.try(ctx, common.NewTimedRequest(common.MsgTLatWaitFor, name, timeout))
}
