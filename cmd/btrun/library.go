package main

import (
	"math/rand/v2"
	"time"

	gobt "github.com/joeycumines/go-behaviortree"

	"github.com/zeusync/behave/internal/core/bt"
	"github.com/zeusync/behave/internal/core/bt/nodes"
)

// library holds the host actions the example trees refer to by name.
func library(dir string) nodes.Library {
	return nodes.Library{
		ScriptDir: dir,
		Actions: map[string]nodes.ActionFuncs{
			"idle": {
				Tick: func(*bt.Context, time.Duration) bt.Status { return bt.StatusRunning },
			},
			"flee": {
				Tick: func(c *bt.Context, dt time.Duration) bt.Status {
					hp := number(c.BB, "hp")
					c.BB.Set("hp", hp+dt.Seconds()*5)
					if hp >= 60 {
						return bt.StatusSucceeded
					}
					return bt.StatusRunning
				},
			},
			"attack": {
				Start: func(c *bt.Context) bt.Status {
					if _, ok := c.BB.Get("target"); !ok {
						return bt.StatusFailed
					}
					return bt.StatusRunning
				},
				Tick: func(c *bt.Context, dt time.Duration) bt.Status {
					c.BB.Set("hp", number(c.BB, "hp")-dt.Seconds()*10)
					if rand.IntN(10) == 0 {
						c.BB.Delete("target")
						return bt.StatusSucceeded
					}
					return bt.StatusRunning
				},
			},
		},
		Externals: map[string]func(*bt.Context) gobt.Node{
			// spot acquires a target now and then.
			"spot": func(c *bt.Context) gobt.Node {
				return gobt.New(func([]gobt.Node) (gobt.Status, error) {
					if rand.IntN(20) != 0 {
						return gobt.Failure, nil
					}
					c.BB.Set("target", "intruder")
					return gobt.Success, nil
				})
			},
		},
	}
}

func number(bb bt.Blackboard, key string) float64 {
	v, _ := bb.Get(key)
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
