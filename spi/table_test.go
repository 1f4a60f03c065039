package spi

import "testing"

func TestReachable(t *testing.T) {
	table := NewTable(32, 64)
	if table.Reachable(10) {
		t.Errorf("id 10 below base 32 should be unreachable")
	}
	if !table.Reachable(32) {
		t.Errorf("id 32 (base) should be reachable")
	}
	if !table.Reachable(95) {
		t.Errorf("id 95 (last) should be reachable")
	}
	if table.Reachable(96) {
		t.Errorf("id 96 past range should be unreachable")
	}
}

// An edge-triggered SPI still posts PENDING when its wire asserts (level=1
// always samples), but a deassertion (level=0) never clears it — only a
// level-triggered SPI's PENDING tracks the wire's deasserted state.
func TestSetLevelEdgeTriggeredLatchesOnAssertOnly(t *testing.T) {
	table := NewTable(0, 8)
	table.SetTriggerMode(3, TriggerEdge)

	table.SetLevel(3, true)
	if !table.Get(3).Pending {
		t.Errorf("edge-triggered SPI should post pending on wire assertion")
	}
	if table.Get(3).Handling != HandlingEdge {
		t.Errorf("edge-triggered SPI's handling mode should be Edge after sampling")
	}

	table.Get(3).Pending = true // re-assert as if the guest hadn't acknowledged yet
	table.SetLevel(3, false)
	if !table.Get(3).Pending {
		t.Errorf("SetLevel(false) must not affect an edge-triggered SPI's pending bit")
	}
}

func TestSetLevelDrivesLevelTriggered(t *testing.T) {
	table := NewTable(0, 8)
	table.SetTriggerMode(3, TriggerLevel)

	table.SetLevel(3, true)
	if !table.Get(3).Pending {
		t.Errorf("level-triggered SPI should become pending when wire asserted")
	}
	if table.Get(3).Handling != HandlingLevel {
		t.Errorf("level-triggered SPI's handling mode should be Level after sampling")
	}
	table.SetLevel(3, false)
	if table.Get(3).Pending {
		t.Errorf("level-triggered SPI should clear pending when wire deasserted")
	}
}

func TestSetLevelNoOpWhenUnchanged(t *testing.T) {
	table := NewTable(0, 8)
	table.SetTriggerMode(3, TriggerLevel)
	table.SetLevel(3, true)
	table.Get(3).Pending = false // simulate the guest having cleared it

	table.SetLevel(3, true) // level does not actually change
	if table.Get(3).Pending {
		t.Errorf("SetLevel with an unchanged level must not resample")
	}
}

func TestResampleReappliesCurrentLevel(t *testing.T) {
	table := NewTable(0, 8)
	table.SetTriggerMode(3, TriggerLevel)
	table.SetLevel(3, true)
	table.Get(3).Pending = false

	table.Resample(3)
	if !table.Get(3).Pending {
		t.Errorf("Resample should reassert pending for a still-asserted level line")
	}
}

func TestSetTriggerModeToLevelWhileAssertedPostsPending(t *testing.T) {
	table := NewTable(0, 8)
	table.SetTriggerMode(3, TriggerEdge)
	table.SetLevel(3, true)
	table.Get(3).Pending = false

	table.SetTriggerMode(3, TriggerLevel)
	if !table.Get(3).Pending {
		t.Errorf("switching to level trigger while asserted should post pending")
	}
	if table.Get(3).Handling != HandlingLevel {
		t.Errorf("switching to level trigger should set handling mode Level")
	}
}

func TestSetTriggerModeToEdgeWhileAssertedClearsPending(t *testing.T) {
	table := NewTable(0, 8)
	table.SetTriggerMode(3, TriggerLevel)
	table.SetLevel(3, true)

	table.SetTriggerMode(3, TriggerEdge)
	if table.Get(3).Pending {
		t.Errorf("switching to edge trigger while asserted should clear pending")
	}
}

func TestUnreachableIDReturnsFalse(t *testing.T) {
	table := NewTable(32, 64)
	if table.SetLevel(5, true) {
		t.Errorf("SetLevel on unreachable id should report false")
	}
	if table.Get(200) != nil {
		t.Errorf("Get on out-of-range id should return nil")
	}
}
