package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(ss ...string) []Amount {
	out := make([]Amount, 0, len(ss))
	for _, s := range ss {
		out = append(out, MustAmount(s))
	}
	return out
}

func TestValidate_Precision(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"100.0000", false},
		{"12345678.1234", false}, // 8 whole, 4 fractional
		{"99999999.9999", false}, // numeric(12,4) ceiling
		{"123456789.123", true},  // 9 whole digits
		{"123456789.5", true},
		{"123456789", true},
		{"123456789012", true},
		{"123456789.1234", true},
		{"1.12345", true},         // 5 fractional
		{"1.50000", false},        // trailing zeros do not count
		{"-99999999.9999", false}, // sign is not a digit
		{"-100000000", true},
		{"0.0001", false},
		{"000012.5", false}, // leading zeros do not count
		{"1000000000000", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := MustAmount(tt.in).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPrecision)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseAmount_Errors(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "1,5", "0x10"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrSyntax, "ParseAmount(%q)", in)
	}
}

func TestAmount_JSON(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"25.5"`), &a))
	assert.Equal(t, "25.5000", a.String())

	require.NoError(t, json.Unmarshal([]byte(`0.1`), &a))
	assert.Equal(t, "0.1000", a.String())

	require.NoError(t, json.Unmarshal([]byte(` "7" `), &a))
	assert.Equal(t, "7.0000", a.String())

	for _, bad := range []string{`null`, `"x"`, `"5`, `5"`, `""`, `"`} {
		err := a.UnmarshalJSON([]byte(bad))
		assert.ErrorIs(t, err, ErrSyntax, "UnmarshalJSON(%s)", bad)
	}

	b, err := json.Marshal(MustAmount("40"))
	require.NoError(t, err)
	assert.JSONEq(t, `"40.0000"`, string(b))
}

func TestAmount_ScanValue(t *testing.T) {
	v, err := MustAmount("7.25").Value()
	require.NoError(t, err)
	assert.Equal(t, "7.2500", v)

	var a Amount
	require.NoError(t, a.Scan("110.0000"))
	assert.True(t, a.Equal(MustAmount("110")))
	require.NoError(t, a.Scan([]byte("3.5")))
	assert.True(t, a.Equal(MustAmount("3.5")))
	require.NoError(t, a.Scan(int64(4)))
	assert.True(t, a.Equal(AmountFromInt(4)))
}

func TestTotal_IsExactAndOrderIndependent(t *testing.T) {
	vals := amounts("0.1", "0.2", "0.3", "1000.0001")
	rev := amounts("1000.0001", "0.3", "0.2", "0.1")
	assert.Equal(t, "1000.6001", Total(vals).String())
	assert.True(t, Total(vals).Equal(Total(rev)))
	assert.Equal(t, "0.0000", Total(nil).String())
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0.5, Rate(MustAmount("50"), MustAmount("100")))
	assert.Equal(t, 1.0, Rate(MustAmount("110"), MustAmount("100")))
	assert.Equal(t, 0.0, Rate(MustAmount("-5"), MustAmount("100")))
	assert.Equal(t, 0.0, Rate(MustAmount("500"), MustAmount("0")))
	assert.Equal(t, 0.0, Rate(MustAmount("500"), MustAmount("-1")))
	assert.InDelta(t, 1.0/3.0, Rate(MustAmount("1"), MustAmount("3")), 1e-12)
}

func TestSummarize_OvershootClampsToOne(t *testing.T) {
	g := Goal{ID: 9, Title: "Run", Target: MustAmount("100.0000"), Unit: "km"}
	s := Summarize(g, amounts("40.0000", "70.0000"))

	assert.Equal(t, int64(9), s.CrystalID)
	assert.Equal(t, "110.0000", s.TotalValue.String())
	assert.Equal(t, 1.0, s.ProgressRate)
	assert.True(t, s.Completed())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"crystal_id":9,"title":"Run","target_value":"100.0000","unit":"km","total_value":"110.0000","progress_rate":1}`, string(b))
}

func TestSummarize_ZeroTarget(t *testing.T) {
	s := Summarize(Goal{Target: Zero}, amounts("10"))
	assert.Equal(t, 0.0, s.ProgressRate)
	assert.False(t, s.Completed())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(50), Percent(MustAmount("25.0000"), MustAmount("50.0000")))
	assert.Equal(t, int64(160), Percent(MustAmount("80.0000"), MustAmount("50.0000")), "single record percent is not clamped")
	assert.Equal(t, int64(33), Percent(MustAmount("1"), MustAmount("3")))
	assert.Equal(t, int64(0), Percent(MustAmount("0.0001"), MustAmount("50")))
	assert.Equal(t, int64(0), Percent(MustAmount("10"), MustAmount("0")))
	assert.Equal(t, int64(-34), Percent(MustAmount("-1"), MustAmount("3")), "floor, not truncation")
}

func TestDecideJoin(t *testing.T) {
	hash, err := HashSecret("s3cret")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := DecideJoin(Room{Mode: ModeGroup, Secret: hash}, "nope", "u1", nil)
		assert.ErrorIs(t, err, ErrWrongPassword)
	})
	t.Run("password checked before capacity", func(t *testing.T) {
		_, err := DecideJoin(Room{Mode: ModeSolo, Secret: hash}, "nope", "u1", []string{"u2"})
		assert.ErrorIs(t, err, ErrWrongPassword)
	})
	t.Run("solo occupied by someone else", func(t *testing.T) {
		_, err := DecideJoin(Room{Mode: ModeSolo, Secret: hash}, "s3cret", "u1", []string{"u2"})
		assert.ErrorIs(t, err, ErrRoomOccupied)
	})
	t.Run("solo occupied by the same user", func(t *testing.T) {
		_, err := DecideJoin(Room{Mode: ModeSolo, Secret: hash}, "s3cret", "u1", []string{"u1"})
		assert.ErrorIs(t, err, ErrRoomOccupied)
	})
	t.Run("empty solo room", func(t *testing.T) {
		out, err := DecideJoin(Room{Mode: ModeSolo, Secret: hash}, "s3cret", "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, JoinInsert, out)
	})
	t.Run("group new member", func(t *testing.T) {
		out, err := DecideJoin(Room{Mode: ModeGroup, Secret: hash}, "s3cret", "u1", []string{"host"})
		require.NoError(t, err)
		assert.Equal(t, JoinInsert, out)
	})
	t.Run("group re-join is a no-op", func(t *testing.T) {
		out, err := DecideJoin(Room{Mode: ModeGroup, Secret: hash}, "s3cret", "u1", []string{"host", "u1"})
		require.NoError(t, err)
		assert.Equal(t, JoinNoop, out)
	})
}

func TestSecrets(t *testing.T) {
	empty, err := HashSecret("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
	assert.True(t, MatchSecret("", ""))
	assert.False(t, MatchSecret("", "x"))

	// plain values written by the stored procedure
	assert.True(t, MatchSecret("plain", "plain"))
	assert.False(t, MatchSecret("plain", "Plain"))

	h, err := HashSecret("pw")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", h)
	assert.True(t, MatchSecret(h, "pw"))
	assert.False(t, MatchSecret(h, h), "the hash itself is not a valid password")
}

func TestMode(t *testing.T) {
	assert.True(t, ModeSolo.Valid())
	assert.True(t, ModeGroup.Valid())
	assert.False(t, Mode("duo").Valid())
}
