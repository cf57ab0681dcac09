package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

func TestDataProcessImporterImportAll(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	repos := newTestRepos(t)

	writeFile(t, base, "Competitive Intelligence_ Texas Real Estate Market/houston_development_platforms.csv",
		"Platform,Market_Share,Competitors\nHoustonLand,12.5%,4\nBayouBuild,8,3\n")
	writeFile(t, base, "Harris County Texas Construction Activity Report_/harris_construction_permits.csv",
		"Permit_Number,Type,Address,Estimated_Cost,Permit_Date\nP-100,commercial,1 Main St,\"$1,500,000\",2024-05-01\n,,,,\n")
	writeFile(t, base, "Harris County Texas Construction Activity Report_/notes.csv",
		"Permit_Number\nIGNORED\n")
	writeFile(t, base, "Harris County Texas and Houston Metro Area Cost An/permit_fees_2024.csv",
		"Permit_Type,Base_Fee,Additional_Fees\nresidential,250,\"{\"\"plan_review\"\": 75}\"\ncommercial,900,not-json\n")
	writeFile(t, base, "Major Infrastructure and Climate Resilience Invest/harris_county_major_projects.csv",
		"Project_Name,Budget,Climate_Component\nBayou Greenways,\"$220,000,000\",Yes\n")
	writeFile(t, base, "Quality of Life Metrics_ Houston and Harris County/crime_stats.csv",
		"ZIP_Code,Crime_Rate,Walk_Score\n77008,3.1,\n,,\n77019,,88\n")

	var (
		mu     sync.Mutex
		events []ProgressEvent
	)
	imp := NewDataProcessImporter(observability.NewNopLogger(), repos, DataProcessConfig{
		BaseDir:     base,
		Concurrency: 2,
		Progress: func(e ProgressEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	results, err := imp.ImportAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 9)

	byCategory := map[string]*ImportResult{}
	for i, r := range results {
		assert.Equal(t, imp.Categories()[i], r.Category, "results keep category order")
		byCategory[r.Category] = r
	}

	assert.Equal(t, 2, byCategory[CategoryCompetitive].RecordsImported)
	assert.Equal(t, 1, byCategory[CategoryConstruction].RecordsImported)
	assert.Equal(t, 1, byCategory[CategoryInfrastructure].RecordsImported)
	assert.Equal(t, 2, byCategory[CategoryQualityOfLife].RecordsImported)
	assert.Equal(t, 0, byCategory[CategoryFinancial].RecordsImported)
	assert.True(t, byCategory[CategoryFinancial].Success, "missing files are skipped")

	cost := byCategory[CategoryCost]
	assert.Equal(t, 1, cost.RecordsImported)
	assert.Equal(t, 1, cost.Failed)
	require.Len(t, cost.Errors, 1)
	assert.Contains(t, cost.Errors[0], "not valid JSON")

	counts, err := repos.Costs.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["permits"])

	recent, err := repos.Construction.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	var infra *storage.ConstructionActivity
	for _, c := range recent {
		if c.PermitType == "infrastructure" {
			infra = c
		}
	}
	require.NotNil(t, infra)
	assert.True(t, strings.HasPrefix(infra.PermitNumber, "INFRA-"))
	require.NotNil(t, infra.Developer)
	assert.Equal(t, "Harris County", *infra.Developer)
	require.NotNil(t, infra.EstimatedCost)
	assert.Equal(t, 220000000.0, *infra.EstimatedCost)

	qol, err := repos.QualityOfLife.GetByZip(ctx, "77008")
	require.NoError(t, err)
	assert.Equal(t, 3.1, qol.CrimeRate)
	assert.Equal(t, 70.0, qol.SafetyScore)
	assert.Equal(t, 50.0, qol.WalkScore)

	qol, err = repos.QualityOfLife.GetByZip(ctx, "77019")
	require.NoError(t, err)
	assert.Equal(t, 0.0, qol.CrimeRate)
	assert.Equal(t, 88.0, qol.WalkScore)

	assert.NotEmpty(t, events)
}

func TestDataProcessImporterImportCategory(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	repos := newTestRepos(t)
	imp := NewDataProcessImporter(observability.NewNopLogger(), repos, DataProcessConfig{BaseDir: base})

	writeFile(t, base, "MLS-Real-Time/houston_zip_code_breakdown_q4_2024.csv",
		"ZIP_Code,Neighborhood,Median_Home_Value,DOM\n77007,Heights,\"$615,000\",31\n")

	t.Run("known category", func(t *testing.T) {
		res, err := imp.ImportCategory(ctx, CategoryMLSRealtime)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.RecordsImported)

		rows, err := repos.Market.LatestByType(ctx, storage.DataTypeMLSRealtime, 5)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.NotNil(t, rows[0].Neighborhood)
		assert.Equal(t, "Heights", *rows[0].Neighborhood)
		require.NotNil(t, rows[0].DataDate)
		assert.Equal(t, 10, int(rows[0].DataDate.Month()))

		var meta map[string]interface{}
		require.NoError(t, rows[0].Metadata.Decode(&meta))
		assert.Equal(t, 615000.0, meta["medianPrice"])
		assert.Equal(t, "MLS-Real-Time/houston_zip_code_breakdown_q4_2024.csv", meta["source"])
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := imp.ImportCategory(ctx, "weather")
		assert.Error(t, err)
	})
}

func TestCostAnalysisType(t *testing.T) {
	tests := map[string]string{
		"labor_rates_2024.csv":        "labor",
		"land_prices_2024.csv":        "land",
		"permit_fees_2024.csv":        "permits",
		"construction_costs_2024.csv": "construction",
	}
	for file, want := range tests {
		t.Run(file, func(t *testing.T) {
			assert.Equal(t, want, costAnalysisType(file))
		})
	}
}
