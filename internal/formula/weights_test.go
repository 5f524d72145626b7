package formula

import "testing"

func TestDefaultWeightTable(t *testing.T) {
	table := DefaultWeightTable()

	for _, mineral := range Minerals {
		mw, ok := table.Minerals[mineral]
		if !ok {
			t.Fatalf("default table missing mineral %q", mineral)
		}
		if mw.BaseDose <= 0 {
			t.Errorf("%s base dose = %.0f, want > 0", mineral, mw.BaseDose)
		}
		if mw.MaxDose < mw.BaseDose {
			t.Errorf("%s max dose %.0f below base dose %.0f", mineral, mw.MaxDose, mw.BaseDose)
		}
		if mw.Form == "" {
			t.Errorf("%s has no delivery form", mineral)
		}
		for _, bucket := range []string{AgeBucket18To30, AgeBucket31To50, AgeBucket51To70, AgeBucket70Plus} {
			if _, ok := mw.AgeMultipliers[bucket]; !ok {
				t.Errorf("%s missing age bucket %q", mineral, bucket)
			}
		}
	}

	if table.Interactions.MgCaTarget != 2.0 {
		t.Errorf("Mg:Ca target = %.1f, want 2.0", table.Interactions.MgCaTarget)
	}
	if table.Interactions.KNaTarget != 2.5 {
		t.Errorf("K:Na target = %.1f, want 2.5", table.Interactions.KNaTarget)
	}

	// Only magnesium carries sleep issue adjustments and a weight factor.
	if len(table.Minerals[Magnesium].IssueAdjustments) == 0 {
		t.Error("magnesium should carry sleep issue adjustments")
	}
	if table.Minerals[Calcium].WeightFactor != 0 {
		t.Error("calcium should have no weight factor")
	}
}

func TestWeightTableClone_AliasingFree(t *testing.T) {
	original := DefaultWeightTable()
	clone := original.Clone()

	if !original.Equal(clone) {
		t.Fatal("clone should equal its source")
	}

	// Mutating every map level of the clone must not touch the source.
	clone.Minerals[Magnesium].BaseDose = 999
	clone.Minerals[Magnesium].AgeMultipliers[AgeBucket18To30] = 9.9
	clone.Minerals[Magnesium].SexMultipliers[SexFemale] = 9.9
	clone.Minerals[Magnesium].IssueAdjustments[IssueRestlessSleep] = 999
	clone.MedicationAdjustments[MedDiuretics][Potassium] = 9.9
	clone.Interactions.MgCaTarget = 9.9
	clone.Version = 42

	if original.Minerals[Magnesium].BaseDose != 300 {
		t.Error("clone mutation leaked into source BaseDose")
	}
	if original.Minerals[Magnesium].AgeMultipliers[AgeBucket18To30] != 1.0 {
		t.Error("clone mutation leaked into source AgeMultipliers")
	}
	if original.Minerals[Magnesium].SexMultipliers[SexFemale] != 1.15 {
		t.Error("clone mutation leaked into source SexMultipliers")
	}
	if original.Minerals[Magnesium].IssueAdjustments[IssueRestlessSleep] != 75 {
		t.Error("clone mutation leaked into source IssueAdjustments")
	}
	if original.MedicationAdjustments[MedDiuretics][Potassium] != 1.3 {
		t.Error("clone mutation leaked into source MedicationAdjustments")
	}
	if original.Interactions.MgCaTarget != 2.0 {
		t.Error("clone mutation leaked into source Interactions")
	}
	if original.Version != 0 {
		t.Error("clone mutation leaked into source Version")
	}
}

func TestWeightTableEqual(t *testing.T) {
	a := DefaultWeightTable()
	b := DefaultWeightTable()

	if !a.Equal(b) {
		t.Error("identical tables should be equal")
	}

	b.Minerals[Sodium].MaxDose = 250
	if a.Equal(b) {
		t.Error("tables differing in one field should not be equal")
	}

	var nilTable *WeightTable
	if a.Equal(nilTable) {
		t.Error("non-nil table should not equal nil")
	}
	if !nilTable.Equal(nil) {
		t.Error("nil tables should be equal")
	}
}
