package app

import (
	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/config"
	"go.aimuz.me/chatwatch/monitor"
	"go.aimuz.me/chatwatch/msglist"
	"go.aimuz.me/chatwatch/platform"
)

func monitorConfig(c *config.Config) monitor.Config {
	return monitor.Config{
		MenuPoll:        c.Poll.Menu,
		GracePoll:       c.Poll.Grace,
		InactivePoll:    c.Poll.Inactive,
		NormalPoll:      c.Poll.Normal,
		MenuGrace:       c.Timing.MenuGrace,
		NavigationGrace: c.Timing.NavigationGrace,
		MenuCheckTTL:    c.Cache.MenuCheckTTL,
		WarmupTimeout:   c.Timing.Warmup,
		QueryTimeout:    c.Timing.QueryTimeout,
		JoinTimeout:     c.Timing.JoinTimeout,
		Filter: access.Filter{
			IgnoreClasses:       c.Filter.IgnoreClasses,
			IgnoreAutomationIDs: c.Filter.IgnoreAutomationIDs,
		},
	}
}

func roomsConfig(c *config.Config) msglist.RoomsConfig {
	return msglist.RoomsConfig{
		ListName:     c.Target.ListName,
		SearchDepth:  c.Target.SearchDepth,
		QueryTimeout: c.Timing.QueryTimeout,
		Detector: msglist.Config{
			Debounce:       c.Timing.Debounce,
			ResumeCooldown: c.Timing.ResumeCooldown,
			PauseWait:      c.Timing.PauseWait,
			QueryTimeout:   c.Timing.QueryTimeout,
			StartTimeout:   c.Timing.QueryTimeout,
			JoinTimeout:    c.Timing.JoinTimeout,
		},
	}
}

// PlatformRules returns the window rules for the target application.
func PlatformRules(c *config.Config) platform.Rules {
	return platform.Rules{
		Process:     c.Target.Process,
		MainClasses: c.Target.MainClasses,
		ChatClasses: c.Target.ChatClasses,
		MenuClasses: c.Target.MenuClasses,
	}
}
