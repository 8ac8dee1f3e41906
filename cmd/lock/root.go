package lock

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/ValentinKolb/dSync/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/exec"
	"time"
)

var (
	rpcLockMgr lockmgr.ILockManager

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Coordinate processes through the dSync server",
		Long: `Coordinate processes through named primitives of the dSync server.

Every invocation opens one connection. Everything the command holds is
released by the server when the connection goes away, also when the
process is killed.`,
		PersistentPreRunE:  setupLockClient,
		PersistentPostRunE: closeLockClient,
	}

	// execCmd represents the exec command
	execCmd = &cobra.Command{
		Use:   "exec [name] -- [command...]",
		Short: "Run a command while holding a mutex",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runExec,
	}

	// semCmd represents the sem command
	semCmd = &cobra.Command{
		Use:   "sem [name] -- [command...]",
		Short: "Run a command while holding a semaphore slot",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSem,
	}

	// barrierCmd represents the barrier command
	barrierCmd = &cobra.Command{
		Use:   "barrier [name]",
		Short: "Arrive at a barrier and wait for the other participants",
		Args:  cobra.ExactArgs(1),
		RunE:  runBarrier,
	}

	// latchCmd represents the latch command
	latchCmd = &cobra.Command{
		Use:   "latch [name]",
		Short: "Count down a latch and optionally wait until it opens",
		Args:  cobra.ExactArgs(1),
		RunE:  runLatch,
	}

	// notifyCmd represents the notify command
	notifyCmd = &cobra.Command{
		Use:   "notify [name]",
		Short: "Notify waiters of a condition variable",
		Args:  cobra.ExactArgs(1),
		RunE:  runNotify,
	}

	// waitCmd represents the wait command
	waitCmd = &cobra.Command{
		Use:   "wait [name]",
		Short: "Wait for a notification of a condition variable",
		Args:  cobra.ExactArgs(1),
		RunE:  runWait,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(execCmd)
	LockCommands.AddCommand(semCmd)
	LockCommands.AddCommand(barrierCmd)
	LockCommands.AddCommand(latchCmd)
	LockCommands.AddCommand(notifyCmd)
	LockCommands.AddCommand(waitCmd)
	LockCommands.AddCommand(perfCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	LockCommands.PersistentFlags().Duration("wait", 0, util.WrapString("How long to wait for the primitive (e.g. 500ms, 10s). 0 waits forever"))

	execCmd.Flags().Bool("shared", false, util.WrapString("Take the mutex in shared (read) mode"))
	semCmd.Flags().Int64("capacity", 1, util.WrapString("Capacity of the semaphore, used if it does not exist yet"))
	barrierCmd.Flags().Int64("size", 2, util.WrapString("Number of participants, used if the barrier does not exist yet"))
	latchCmd.Flags().Int64("count", 1, util.WrapString("Initial count, used if the latch does not exist yet"))
	latchCmd.Flags().Int64("down", 0, util.WrapString("Count the latch down by this value"))
	latchCmd.Flags().Bool("await", false, util.WrapString("Wait until the latch is open"))
	notifyCmd.Flags().Bool("all", false, util.WrapString("Wake all waiters instead of one"))
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// perf opens its own connections
	if cmd == perfCmd {
		return nil
	}

	var err error
	rpcLockMgr, err = newLockMgr()
	return err
}

// closeLockClient closes the connection, which releases everything it still holds
func closeLockClient(_ *cobra.Command, _ []string) error {
	if rpcLockMgr == nil {
		return nil
	}
	return rpcLockMgr.Close()
}

// newLockMgr opens a new connection to the configured shard
func newLockMgr() (lockmgr.ILockManager, error) {
	s, err := util.GetSerializer()
	if err != nil {
		return nil, err
	}

	t, err := util.GetTransport()
	if err != nil {
		return nil, err
	}

	return client.NewRPCLockMgr(
		util.GetShardID(),
		*util.GetClientConfig(),
		t,
		s,
	)
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	shared := viper.GetBool("shared")

	m, err := client.NewRemoteMutex(ctx, rpcLockMgr, args[0])
	if err != nil {
		return fmt.Errorf("failed to open mutex: %w", err)
	}
	defer m.Close(context.WithoutCancel(ctx))

	lock, unlock := m.Lock, m.Unlock
	tryLockFor := m.TryLockFor
	if shared {
		lock, unlock = m.LockShared, m.UnlockShared
		tryLockFor = m.TryLockSharedFor
	}

	if err := acquire(ctx, lock, tryLockFor); err != nil {
		return fmt.Errorf("failed to lock %s: %w", args[0], err)
	}
	defer unlock(context.WithoutCancel(ctx))

	return runCommand(ctx, args[1:])
}

func runSem(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := client.NewRemoteSemaphore(ctx, rpcLockMgr, args[0], viper.GetInt64("capacity"))
	if err != nil {
		return fmt.Errorf("failed to open semaphore: %w", err)
	}
	defer s.Close(context.WithoutCancel(ctx))

	if err := acquire(ctx, s.Acquire, s.TryAcquireFor); err != nil {
		return fmt.Errorf("failed to acquire %s: %w", args[0], err)
	}
	defer s.Release(context.WithoutCancel(ctx), 1)

	return runCommand(ctx, args[1:])
}

func runBarrier(cmd *cobra.Command, args []string) error {
	ctx, cancel := waitContext(cmd.Context())
	defer cancel()

	b, err := client.NewRemoteBarrier(ctx, rpcLockMgr, args[0], viper.GetInt64("size"))
	if err != nil {
		return fmt.Errorf("failed to open barrier: %w", err)
	}
	defer b.Close(context.WithoutCancel(ctx))

	if err := b.ArriveAndWait(ctx); err != nil {
		return fmt.Errorf("failed to pass barrier %s: %w", args[0], err)
	}

	fmt.Printf("passed=true, size=%d\n", b.Size())
	return nil
}

func runLatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	l, err := client.NewRemoteLatch(ctx, rpcLockMgr, args[0], viper.GetInt64("count"))
	if err != nil {
		return fmt.Errorf("failed to open latch: %w", err)
	}
	defer l.Close(context.WithoutCancel(ctx))

	if n := viper.GetInt64("down"); n > 0 {
		if err := l.CountDown(ctx, n); err != nil {
			return fmt.Errorf("failed to count down %s: %w", args[0], err)
		}
	}

	var open bool
	switch wait := viper.GetDuration("wait"); {
	case !viper.GetBool("await"):
		open, err = l.TryWait(ctx)
	case wait > 0:
		open, err = l.WaitFor(ctx, wait)
	default:
		err = l.Wait(ctx)
		open = err == nil
	}
	if err != nil {
		return fmt.Errorf("failed to wait for %s: %w", args[0], err)
	}

	fmt.Printf("open=%v\n", open)
	return nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := client.NewRemoteConditionVariable(ctx, rpcLockMgr, args[0])
	if err != nil {
		return fmt.Errorf("failed to open condition variable: %w", err)
	}
	defer c.Close(context.WithoutCancel(ctx))

	if viper.GetBool("all") {
		err = c.NotifyAll(ctx)
	} else {
		err = c.NotifyOne(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", args[0], err)
	}
	return nil
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := client.NewRemoteConditionVariable(ctx, rpcLockMgr, args[0])
	if err != nil {
		return fmt.Errorf("failed to open condition variable: %w", err)
	}
	defer c.Close(context.WithoutCancel(ctx))

	woken := true
	if wait := viper.GetDuration("wait"); wait > 0 {
		woken, err = c.WaitFor(ctx, wait)
	} else {
		err = c.Wait(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to wait for %s: %w", args[0], err)
	}

	fmt.Printf("woken=%v\n", woken)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// acquire blocks on lock, or on tryFor if --wait is set
func acquire(
	ctx context.Context,
	lock func(context.Context) error,
	tryFor func(context.Context, time.Duration) (bool, error),
) error {
	wait := viper.GetDuration("wait")
	if wait <= 0 {
		return lock(ctx)
	}

	ok, err := tryFor(ctx, wait)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("timed out after %s", wait)
	}
	return nil
}

// waitContext bounds ctx by --wait
func waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if wait := viper.GetDuration("wait"); wait > 0 {
		return context.WithTimeout(ctx, wait)
	}
	return context.WithCancel(ctx)
}

// runCommand runs args with the standard streams of this process
func runCommand(ctx context.Context, args []string) error {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
