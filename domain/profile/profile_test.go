package profile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detail(name string) Detail {
	return Detail{FarmName: name, ContactPerson: "Jane Doe"}
}

func TestMergeBase(t *testing.T) {
	active := detail("Active Farm")
	draft := detail("Draft Farm")

	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"neither", New("u1", BasicInfo{}), ""},
		{"active only", New("u1", BasicInfo{}).WithActive(active), "Active Farm"},
		{"draft only", New("u1", BasicInfo{}).WithDraft(draft), "Draft Farm"},
		{"both prefers draft", New("u1", BasicInfo{}).WithActive(active).WithDraft(draft), "Draft Farm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := tt.profile.MergeBase()
			if tt.want == "" {
				assert.Nil(t, base)
				return
			}
			require.NotNil(t, base)
			assert.Equal(t, tt.want, base.FarmName)
		})
	}
}

func TestApprove(t *testing.T) {
	p := New("u1", BasicInfo{}).WithActive(detail("Old")).WithDraft(detail("New"))

	approved, err := p.Approve()
	require.NoError(t, err)
	assert.False(t, approved.HasDraft())
	require.NotNil(t, approved.Active())
	assert.Equal(t, "New", approved.Active().FarmName)

	// Original value is unchanged.
	assert.True(t, p.HasDraft())

	_, err = approved.Approve()
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestProfile_DetailIsCopied(t *testing.T) {
	p := New("u1", BasicInfo{}).WithDraft(detail("Farm"))
	d := p.Draft()
	d.FarmName = "Mutated"
	assert.Equal(t, "Farm", p.Draft().FarmName)
}

func TestDecodeDetail(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := `{
			"farm_name": "Prairie Grain Co.",
			"contact_person": "John Doe",
			"description": "Organic wheat farm, 500 acres",
			"farm_details": {"acreage": 500, "planting_start": "2025-04-01"},
			"products": [{"name": "Spring Wheat", "category": "wheat", "unit": "tonnes", "quantity_available": 1000, "harvest_date": "2025-09-15T13:45:00Z"}],
			"certifications": [{"name": "organic"}],
			"verification": {"status": "pending"}
		}`
		d, err := DecodeDetail([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "Organic wheat farm, 500 acres", d.Description)
		require.NotNil(t, d.FarmDetails.PlantingStart)
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), d.FarmDetails.PlantingStart.Time)
		require.NotNil(t, d.Products[0].HarvestDate)
		assert.Equal(t, time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC), d.Products[0].HarvestDate.Time)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := DecodeDetail([]byte(`{"farm_name": "X"}`))
		require.ErrorIs(t, err, fault.ErrValidation)
		assert.Contains(t, err.Error(), "ContactPerson")
	})

	t.Run("product without unit", func(t *testing.T) {
		_, err := DecodeDetail([]byte(`{"farm_name": "X", "contact_person": "Y", "products": [{"name": "Wheat", "category": "grain"}]}`))
		require.ErrorIs(t, err, fault.ErrValidation)
		assert.Contains(t, err.Error(), "Unit")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := DecodeDetail([]byte(`{"farm_name": "X", "contact_person": "Y", "owner": "Z"}`))
		require.ErrorIs(t, err, fault.ErrValidation)
	})

	t.Run("bad verification status", func(t *testing.T) {
		_, err := DecodeDetail([]byte(`{"farm_name": "X", "contact_person": "Y", "verification": {"status": "done"}}`))
		require.ErrorIs(t, err, fault.ErrValidation)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := DecodeDetail([]byte(`{"farm_name": "X", "contact_person": "Y", "farm_details": {"harvest_end": "September"}}`))
		require.ErrorIs(t, err, fault.ErrValidation)
	})
}

func TestDate_MarshalsAsMidnightTimestamp(t *testing.T) {
	d, err := ParseDate("2025-04-01")
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-04-01T00:00:00Z"`, string(data))
}

func TestNormalizeDates(t *testing.T) {
	afternoon := time.Date(2025, 9, 15, 17, 30, 0, 0, time.FixedZone("X", -5*3600))
	d := Detail{
		FarmName:      "Farm",
		ContactPerson: "Jane",
		FarmDetails:   FarmDetails{HarvestEnd: &Date{Time: afternoon}},
		Products: []Product{
			{Name: "Wheat", Category: "grain", Unit: "t", HarvestDate: &Date{Time: afternoon}},
		},
		Certifications: []Certification{{Name: "organic", ValidTo: &Date{Time: afternoon}}},
	}

	NormalizeDates(&d)

	want := time.Date(2025, 9, 15, 22, 30, 0, 0, time.UTC)
	want = time.Date(want.Year(), want.Month(), want.Day(), 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, d.FarmDetails.HarvestEnd.Time)
	assert.Equal(t, want, d.Products[0].HarvestDate.Time)
	assert.Equal(t, want, d.Certifications[0].ValidTo.Time)
}

func TestNormalizeDates_Map(t *testing.T) {
	m := map[string]Date{"a": {Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}}
	NormalizeDates(&m)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), m["a"].Time)
}

func TestRender(t *testing.T) {
	qty := 1000.0
	d := Detail{
		FarmName:      "Prairie Grain Co.",
		ContactPerson: "John Doe",
		Description:   "Family-owned grain farm",
		Products: []Product{
			{Name: "Spring Wheat", Category: "wheat", Variety: "Variety X", QuantityAvailable: &qty, Unit: "tonnes"},
		},
	}
	p := New("u1", BasicInfo{FirstName: "John", LastName: "Doe", Country: "Canada"}).WithActive(d)

	want := "Name: John Doe. Country: Canada. Description: Family-owned grain farm. " +
		"Farm name: Prairie Grain Co.. Contact person: John Doe. " +
		"Product: Spring Wheat, category wheat, variety Variety X, 1000 tonnes."
	assert.Equal(t, want, Render(p))
}

func TestRender_NoDetail(t *testing.T) {
	p := New("u1", BasicInfo{Country: "Kenya"})
	assert.Equal(t, "Country: Kenya.", Render(p))
	assert.Empty(t, Render(New("u2", BasicInfo{})))
}

func TestFacetsOf(t *testing.T) {
	d := Detail{
		FarmName:       "Farm",
		ContactPerson:  "Jane",
		Location:       Location{Province: "Saskatchewan"},
		Certifications: []Certification{{Name: "organic"}, {Name: "organic"}, {Name: "fair-trade"}},
		Products: []Product{
			{Name: "Spring Wheat", Category: "wheat", Unit: "t"},
			{Name: "Durum", Category: "wheat", Unit: "t"},
			{Name: "Barley", Category: "barley", Unit: "t"},
		},
	}
	f := FacetsOf(New("u1", BasicInfo{Country: "Canada"}).WithActive(d))

	assert.Equal(t, "Saskatchewan", f.Region)
	assert.Equal(t, []string{"organic", "fair-trade"}, f.Certifications)
	assert.Equal(t, []string{"wheat", "barley"}, f.PrimaryCrops)

	assert.Equal(t, "Canada", FacetsOf(New("u2", BasicInfo{Country: "Canada"})).Region)
}

func TestRenderAndFacets_IgnoreDraft(t *testing.T) {
	draft := Detail{
		FarmName:      "Unapproved Farm",
		ContactPerson: "Jane",
		Location:      Location{Province: "Manitoba"},
	}
	p := New("u1", BasicInfo{Country: "Canada"}).WithDraft(draft)

	assert.Equal(t, "Country: Canada.", Render(p))
	assert.NotContains(t, Render(p), "Unapproved Farm")
	assert.Equal(t, "Canada", FacetsOf(p).Region)
}
