package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/internal/data/memstore"
	"github.com/target/domain-enricher/internal/domain/model"
)

const seedFixture = `"NOMBRE_DOMINIO"|"TITULAR"|"IDENTIFICACION"
"Example.TEST."|"Example Co"|"B-1234 5678"

"anon.test"|""|""
"short.test"
""|"Nobody"|"X1"
"example.test"|"Duplicate Co"|"B00000000"
`

func TestSeedImporter_Import(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	imp, err := NewSeedImporter(SeedImporterOptions{Store: store})
	require.NoError(t, err)

	report, err := imp.Import(ctx, strings.NewReader(seedFixture))
	require.NoError(t, err)
	assert.Equal(t, model.ImportReport{Inserted: 3, Existing: 1, MissingOwner: 2, Skipped: 1}, report)

	pw, err := store.GetPendingWork(ctx, "example.test")
	require.NoError(t, err)
	assert.Equal(t, "Example Co", pw.Owner.Titular)
	assert.Equal(t, "B12345678", pw.Owner.Identificacion)
	for _, st := range model.AllStages() {
		assert.Equal(t, model.StatusNotStarted, pw.Stages[st].Status, st)
	}

	again, err := imp.Import(ctx, strings.NewReader(seedFixture))
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, 4, again.Existing)
}

func TestParseSeedFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields []string
		want   model.SeedRecord
		ok     bool
	}{
		{
			name:   "full row",
			fields: []string{" Shop.Example. ", " Tienda SL ", "B 876-543 21"},
			want:   model.SeedRecord{Domain: "shop.example", Owner: model.Owner{Titular: "Tienda SL", Identificacion: "B87654321"}},
			ok:     true,
		},
		{
			name:   "domain only",
			fields: []string{"solo.example"},
			want:   model.SeedRecord{Domain: "solo.example"},
			ok:     true,
		},
		{name: "empty domain", fields: []string{"  ", "x", "y"}},
		{name: "no fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSeedFields(tt.fields)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
