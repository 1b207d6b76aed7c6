package tui

import (
	"context"
	"errors"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jaakkos/auditwatch/internal/auditlog"
)

// Run shows the tail view until the user quits or ctx is cancelled. A bridge
// over store forwards every snapshot into the program; it is active for the
// lifetime of the program.
func Run(ctx context.Context, store *auditlog.Store, filter *auditlog.Filter, logger *log.Logger, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(New(ctx, store, filter), opts...)

	b := auditlog.NewBridge(store, func(snap auditlog.Snapshot) {
		p.Send(SnapshotMsg(snap))
	}, logger)
	// Send blocks until the program is running, so activate alongside Run.
	activated := make(chan error, 1)
	go func() { activated <- b.Activate() }()

	_, runErr := p.Run()

	if err := <-activated; err != nil {
		return fmt.Errorf("attach tail view: %w", err)
	}
	if err := b.Deactivate(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}
