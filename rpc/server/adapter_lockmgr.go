package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/ValentinKolb/dSync/rpc/common"
)

func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapter{}
}

type lockMgrServerAdapter struct{}

func (adapter *lockMgrServerAdapter) Handle(ctx context.Context, req *common.Message, locks lockmgr.ILockManager) (resp *common.Message) {

	// Check for nil lock manager
	if locks == nil {
		return common.NewErrorResponse("handler: lock manager is nil")
	}

	// respond builds the response for the request type
	respond := func(ok bool, count int64, err error) *common.Message {
		return common.NewResponse(req.MsgType, ok, count, err)
	}

	key := req.Key
	timeout := req.TimeoutDuration()

	// Handle different message types
	switch req.MsgType {

	// Mutexes

	case common.MsgTMtxEmplace:
		return respond(false, 0, locks.Mutexes().Emplace(ctx, key))
	case common.MsgTMtxErase:
		return respond(false, 0, locks.Mutexes().Erase(ctx, key))
	case common.MsgTMtxLock:
		return respond(false, 0, locks.Mutexes().Lock(ctx, key))
	case common.MsgTMtxTryLock:
		ok, err := locks.Mutexes().TryLock(ctx, key)
		return respond(ok, 0, err)
	case common.MsgTMtxTryLockFor:
		ok, err := locks.Mutexes().TryLockFor(ctx, key, timeout)
		return respond(ok, 0, err)
	case common.MsgTMtxUnlock:
		return respond(false, 0, locks.Mutexes().Unlock(ctx, key))
	case common.MsgTMtxLockShared:
		return respond(false, 0, locks.Mutexes().LockShared(ctx, key))
	case common.MsgTMtxTryLockShared:
		ok, err := locks.Mutexes().TryLockShared(ctx, key)
		return respond(ok, 0, err)
	case common.MsgTMtxTryLockSharedFor:
		ok, err := locks.Mutexes().TryLockSharedFor(ctx, key, timeout)
		return respond(ok, 0, err)
	case common.MsgTMtxUnlockShared:
		return respond(false, 0, locks.Mutexes().UnlockShared(ctx, key))

	// Semaphores

	case common.MsgTSemEmplace:
		capacity, err := locks.Semaphores().Emplace(ctx, key, req.Count)
		return respond(false, capacity, err)
	case common.MsgTSemErase:
		return respond(false, 0, locks.Semaphores().Erase(ctx, key))
	case common.MsgTSemAcquire:
		return respond(false, 0, locks.Semaphores().Acquire(ctx, key))
	case common.MsgTSemTryAcquire:
		ok, err := locks.Semaphores().TryAcquire(ctx, key)
		return respond(ok, 0, err)
	case common.MsgTSemTryAcquireFor:
		ok, err := locks.Semaphores().TryAcquireFor(ctx, key, timeout)
		return respond(ok, 0, err)
	case common.MsgTSemRelease:
		return respond(false, 0, locks.Semaphores().Release(ctx, key, req.Count))

	// Condition variables

	case common.MsgTCVEmplace:
		return respond(false, 0, locks.ConditionVariables().Emplace(ctx, key))
	case common.MsgTCVErase:
		return respond(false, 0, locks.ConditionVariables().Erase(ctx, key))
	case common.MsgTCVWait:
		return respond(false, 0, locks.ConditionVariables().Wait(ctx, key))
	case common.MsgTCVWaitFor:
		ok, err := locks.ConditionVariables().WaitFor(ctx, key, timeout)
		return respond(ok, 0, err)
	case common.MsgTCVNotifyOne:
		return respond(false, 0, locks.ConditionVariables().NotifyOne(ctx, key))
	case common.MsgTCVNotifyAll:
		return respond(false, 0, locks.ConditionVariables().NotifyAll(ctx, key))

	// Barriers

	case common.MsgTBarEmplace:
		size, err := locks.Barriers().Emplace(ctx, key, req.Count)
		return respond(false, size, err)
	case common.MsgTBarErase:
		return respond(false, 0, locks.Barriers().Erase(ctx, key))
	case common.MsgTBarArrive:
		return respond(false, 0, locks.Barriers().Arrive(ctx, key, req.Count))
	case common.MsgTBarArriveAndWait:
		return respond(false, 0, locks.Barriers().ArriveAndWait(ctx, key))
	case common.MsgTBarArriveAndDrop:
		return respond(false, 0, locks.Barriers().ArriveAndDrop(ctx, key))
	case common.MsgTBarWait:
		return respond(false, 0, locks.Barriers().Wait(ctx, key))
	case common.MsgTBarWaitFor:
		ok, err := locks.Barriers().WaitFor(ctx, key, timeout)
		return respond(ok, 0, err)

	// Latches

	case common.MsgTLatEmplace:
		count, err := locks.Latches().Emplace(ctx, key, req.Count)
		return respond(false, count, err)
	case common.MsgTLatErase:
		return respond(false, 0, locks.Latches().Erase(ctx, key))
	case common.MsgTLatCountDown:
		return respond(false, 0, locks.Latches().CountDown(ctx, key, req.Count))
	case common.MsgTLatArriveAndWait:
		return respond(false, 0, locks.Latches().ArriveAndWait(ctx, key))
	case common.MsgTLatTryWait:
		ok, err := locks.Latches().TryWait(ctx, key)
		return respond(ok, 0, err)
	case common.MsgTLatWait:
		return respond(false, 0, locks.Latches().Wait(ctx, key))
	case common.MsgTLatWaitFor:
		ok, err := locks.Latches().WaitFor(ctx, key, timeout)
		return respond(ok, 0, err)

	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
