// Command flowgraph-demo builds and runs a small order-processing graph
// end to end, printing its final context and buffered logs.
package main

import (
	"fmt"
	"os"

	"github.com/smilemakc/flowgraph/internal/config"
	"github.com/smilemakc/flowgraph/pkg/graph"
)

type orderContext struct {
	Total     float64 `json:"total" validate:"gte=0"`
	Approved  bool    `json:"approved"`
	ShippedAt string  `json:"shipped_at"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	flow, err := graph.New(graph.GraphDefinition{
		Name:   "order-processing",
		Schema: graph.NewStructSchema(func() any { return &orderContext{} }),
		Context: map[string]any{
			"total":      125.0,
			"approved":   false,
			"shipped_at": "",
		},
		Nodes: []graph.NodeConfig{
			{
				Name: "approve",
				Next: graph.Guarded(
					graph.NextEntry{
						Node:      "ship",
						Condition: func(v *graph.View) bool { return v.MustGet("total").(float64) >= 100 },
						Label:     "total >= 100",
					},
				),
				Execute: func(ctx *graph.View, call *graph.CallBag) error {
					ctx.Set("approved", true)
					return nil
				},
			},
			{
				Name: "ship",
				Execute: func(ctx *graph.View, call *graph.CallBag) error {
					ctx.Set("shipped_at", "2026-07-29T00:00:00Z")
					return nil
				},
			},
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "build graph:", err)
		os.Exit(1)
	}
	flow.SetVerbose(cfg.Logging.Level == "debug")

	result, err := flow.Execute("approve", nil, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "execute graph:", err)
		os.Exit(1)
	}

	fmt.Printf("final context: %+v\n", result)
	for _, line := range flow.GetLogs() {
		fmt.Println(line)
	}
}
