package signaling

import "testing"

func TestJoinVoiceChannel(t *testing.T) {
	got := JoinVoiceChannel("guild-1", "channel-1", true)
	if got.GuildID == nil || *got.GuildID != "guild-1" {
		t.Errorf("GuildID = %v, want guild-1", got.GuildID)
	}
	if got.ChannelID == nil || *got.ChannelID != "channel-1" {
		t.Errorf("ChannelID = %v, want channel-1", got.ChannelID)
	}
	if got.SelfMute {
		t.Error("SelfMute should be false when joining")
	}
	if !got.SelfDeaf {
		t.Error("SelfDeaf should be true when joining")
	}
	if !got.SelfVideo {
		t.Error("SelfVideo should reflect the requested camera state")
	}
}

func TestLeaveVoiceChannel(t *testing.T) {
	got := LeaveVoiceChannel()
	if got.GuildID != nil || got.ChannelID != nil {
		t.Errorf("leave payload should have nil guild/channel, got %+v", got)
	}
	if !got.SelfMute {
		t.Error("SelfMute should be true when leaving")
	}
}

func TestNewStreamCreate(t *testing.T) {
	got := NewStreamCreate("guild-1", "channel-1")
	if got.Type != "guild" {
		t.Errorf("Type = %q, want guild", got.Type)
	}
	if got.GuildID != "guild-1" || got.ChannelID != "channel-1" {
		t.Errorf("unexpected ids: %+v", got)
	}
	if got.PreferredRegion != nil {
		t.Error("PreferredRegion should be unset by default")
	}
}
