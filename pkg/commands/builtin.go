package commands

import (
	"context"
	"fmt"
	"strings"

	"spindrift/pkg/config"
	"spindrift/pkg/reply"
	"spindrift/pkg/settings"
)

const paramsRule = "========"

// Builtins returns start, help, set and params in that order.
func Builtins(store settings.Store, labels config.LabelsConfig) []*Command {
	return []*Command{
		{
			Name:        "start",
			Description: "Shows the starting dialog",
			Usage:       "/start",
			Handler:     TextHandler(labels.Start),
		},
		{
			Name:        "help",
			Description: "Shows the available commands",
			Usage:       "/help",
			Handler:     TextHandler(labels.Help),
		},
		{
			Name:        "set",
			Description: "Sets a parameter",
			Usage:       "/set <param> <value>",
			Handler:     SetHandler(store, labels),
		},
		{
			Name:        "params",
			Description: "Shows all specified parameters",
			Usage:       "/params",
			Handler:     ParamsHandler(store, labels),
		},
	}
}

// TextHandler always replies with text.
func TextHandler(text string) Handler {
	return func(ctx context.Context, req Request) (reply.Result, error) {
		return reply.Text(text), nil
	}
}

// SetHandler handles "/set <param> <value>". Anything but exactly two
// arguments gets the usage text back.
func SetHandler(store settings.Store, labels config.LabelsConfig) Handler {
	return func(ctx context.Context, req Request) (reply.Result, error) {
		args := strings.Fields(req.Args)
		if len(args) != 2 {
			return reply.Text(labels.SetUsage), nil
		}

		parameter, value := args[0], args[1]
		if err := store.Record(ctx, req.UserID, parameter, value); err != nil {
			return reply.Result{}, fmt.Errorf("set %s: %w", parameter, err)
		}
		return reply.Text(fmt.Sprintf(labels.ParamChanged, parameter, value)), nil
	}
}

// ParamsHandler lists the caller's parameters sorted by name.
func ParamsHandler(store settings.Store, labels config.LabelsConfig) Handler {
	return func(ctx context.Context, req Request) (reply.Result, error) {
		cfg, err := store.Get(ctx, req.UserID)
		if err != nil {
			return reply.Result{}, fmt.Errorf("load params: %w", err)
		}
		if len(cfg) == 0 {
			return reply.Text(labels.NoParameters), nil
		}

		var sb strings.Builder
		sb.WriteString(labels.ParametersTitle)
		sb.WriteString("\n")
		sb.WriteString(paramsRule)
		for _, k := range cfg.Keys() {
			sb.WriteString(fmt.Sprintf("\n%s = %s", k, cfg[k]))
		}
		return reply.Text(sb.String()), nil
	}
}
