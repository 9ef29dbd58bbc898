package source

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPackage(t *testing.T, killID int64, killmailJSON string, totalValue float64, href string) *redisQPackage {
	t.Helper()
	return &redisQPackage{
		KillID:   killID,
		Killmail: json.RawMessage(killmailJSON),
		ZKB:      zkbData{TotalValue: totalValue, Href: href},
	}
}

func TestParseEvent_PrefersInnerKillmailID(t *testing.T) {
	pkg := mustPackage(t, 1, `{
		"killmail_id": 9001,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 0, "")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	assert.Equal(t, int64(9001), event.EventID)
}

func TestParseEvent_FallsBackToEnvelopeKillID(t *testing.T) {
	pkg := mustPackage(t, 1, `{
		"killmail_id": 0,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 0, "")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), event.EventID)
}

func TestParseEvent_InvalidTimestampIsTypedError(t *testing.T) {
	pkg := mustPackage(t, 1, `{
		"killmail_id": 1,
		"killmail_time": "not-a-time",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 0, "")

	_, err := parseEvent(pkg)
	require.Error(t, err)
	var invalid *InvalidTimestamp
	assert.ErrorAs(t, err, &invalid)
}

func TestParseEvent_MissingPayloadIsTypedError(t *testing.T) {
	pkg := &redisQPackage{KillID: 1}
	_, err := parseEvent(pkg)
	require.Error(t, err)
	var missing *MissingPayload
	assert.ErrorAs(t, err, &missing)
}

func TestParseEvent_AttackerIDsDedupedPreservingOrderDroppingNull(t *testing.T) {
	pkg := mustPackage(t, 1, `{
		"killmail_id": 1,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": [
			{"character_id": 55, "corporation_id": 60},
			{},
			{"character_id": 55, "corporation_id": 60},
			{"character_id": 77, "corporation_id": 88}
		]
	}`, 0, "")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	assert.Equal(t, []int64{55, 77}, event.AttackerCharacterIDs)
	assert.Equal(t, []int64{60, 88}, event.AttackerCorporationIDs)
}

func TestParseEvent_ISKValueRoundsHalfToEven(t *testing.T) {
	pkg := mustPackage(t, 1, `{
		"killmail_id": 1,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 750000000.5, "")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	require.NotNil(t, event.ISKValue)
	assert.Equal(t, int64(750000000), *event.ISKValue)
}

func TestParseEvent_ZeroISKValueIsNil(t *testing.T) {
	pkg := mustPackage(t, 1, `{
		"killmail_id": 1,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 0, "")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	assert.Nil(t, event.ISKValue)
}

func TestParseEvent_SourceURLPrefersHref(t *testing.T) {
	pkg := mustPackage(t, 42, `{
		"killmail_id": 42,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 0, "https://zkillboard.com/kill/42/")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	assert.Equal(t, "https://zkillboard.com/kill/42/", event.SourceURL)
}

func TestParseEvent_SourceURLSynthesizedWhenHrefMissing(t *testing.T) {
	pkg := mustPackage(t, 42, `{
		"killmail_id": 42,
		"killmail_time": "2024-05-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {"character_id": 100, "corporation_id": 200},
		"attackers": []
	}`, 0, "")

	event, err := parseEvent(pkg)
	require.NoError(t, err)
	assert.Equal(t, "https://zkillboard.com/kill/42/", event.SourceURL)
}
