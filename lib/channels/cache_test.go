// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package channels

import (
	"testing"

	"github.com/chatvault/chatvault/lib/wire"
)

func TestSeedFlattensDirectAndGuildChannels(t *testing.T) {
	cache := NewCache()
	cache.Seed(
		[]wire.Channel{
			{ID: "d1", Type: int(KindDirect)},
			{ID: "g1", Type: int(KindGroup)},
		},
		[]wire.Guild{
			{ID: "guild-a", Channels: []wire.Channel{
				{ID: "t1", Type: int(KindGuildText)},
				{ID: "v1", Type: int(KindGuildVoice)},
			}},
			{ID: "guild-b", Channels: []wire.Channel{
				{ID: "n1", Type: int(KindGuildNews)},
			}},
		},
	)

	if got := cache.Len(); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}

	entry, ok := cache.Lookup("t1")
	if !ok {
		t.Fatal("t1 not found")
	}
	if entry.Kind != KindGuildText || entry.GuildID != "guild-a" {
		t.Errorf("t1 = %+v", entry)
	}

	entry, ok = cache.Lookup("d1")
	if !ok {
		t.Fatal("d1 not found")
	}
	if entry.Kind != KindDirect || entry.GuildID != "" {
		t.Errorf("d1 = %+v", entry)
	}
}

func TestInsertAfterSeed(t *testing.T) {
	cache := NewCache()
	cache.Seed(nil, nil)

	cache.Insert(wire.Channel{ID: "c1", Type: int(KindGuildText), GuildID: "guild-z"})

	entry, ok := cache.Lookup("c1")
	if !ok {
		t.Fatal("c1 not found after Insert")
	}
	if entry.Kind != KindGuildText || entry.GuildID != "guild-z" {
		t.Errorf("c1 = %+v", entry)
	}
}

func TestLookupUnknownChannel(t *testing.T) {
	cache := NewCache()
	if _, ok := cache.Lookup("nope"); ok {
		t.Error("Lookup on empty cache should miss")
	}
}

func TestKindClassification(t *testing.T) {
	if KindDirect.InGuild() || KindGroup.InGuild() {
		t.Error("direct/group kinds must not classify as guild kinds")
	}
	if !KindGuildStore.InGuild() || !KindGuildCategory.InGuild() {
		t.Error("store/category kinds must classify as guild kinds")
	}
	if got := KindGuildNews.PathSegment(); got != "news" {
		t.Errorf("PathSegment = %q", got)
	}
	if got := KindGuildVoice.String(); got != "guild-voice" {
		t.Errorf("String = %q", got)
	}
}
