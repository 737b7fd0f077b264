package app

import (
	"context"
	"errors"
	"fmt"

	"vapi/internal/alerting"
	"vapi/internal/storage"
)

// NotifyOptions configure the notify-test command.
type NotifyOptions struct {
	Feed  string
	Group string
	// DryRun prints the rendered messages instead of sending them.
	DryRun bool
}

// NotifyTest renders the latest snapshot of a feed (each group, or one group)
// and pushes it through the configured channels synchronously.
func (a *App) NotifyTest(ctx context.Context, opts NotifyOptions) ([]alerting.Message, error) {
	def, err := a.Registry.Lookup(opts.Feed)
	if err != nil {
		return nil, err
	}

	var notifier alerting.Notifier
	if !opts.DryRun {
		if !a.Config.Alerting.Enabled {
			return nil, errors.New("alerting 未启用")
		}
		if notifier, err = a.newNotifier(ctx); err != nil {
			return nil, err
		}
		if notifier == nil {
			return nil, errors.New("未配置任何告警通道")
		}
	}

	be, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer be.close()

	var snaps []storage.Snapshot
	if def.Grouped() {
		filter := storage.GroupFilter{Group: def.NormalizeGroup(opts.Group)}
		if snaps, err = be.store.LatestPerGroup(ctx, def.Key(), filter); err != nil {
			return nil, err
		}
	} else {
		latest, err := be.store.Latest(ctx, def.Key())
		if err != nil {
			return nil, err
		}
		if latest != nil {
			snaps = append(snaps, *latest)
		}
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%s has no snapshot to notify", def.Key())
	}

	formatter := alerting.NewFormatter()
	msgs := make([]alerting.Message, 0, len(snaps))
	for _, snap := range snaps {
		msg := formatter.Format(def, snap)
		msgs = append(msgs, msg)
		if opts.DryRun {
			fmt.Fprintf(a.Out, "[%s] %s\n%s\n", msg.Topic, msg.Title, msg.Body)
			continue
		}
		if err := notifier.Notify(ctx, msg); err != nil {
			return msgs, err
		}
		a.Logger.Info().Str("feed", def.Key()).Str("topic", msg.Topic).Msg("test notification sent")
	}
	return msgs, nil
}
