package region

import "testing"

func TestAllOrdering(t *testing.T) {
	all := All()
	want := []Region{EU, US, SA}

	if len(all) != len(want) {
		t.Fatalf("All() returned %d regions, want %d", len(all), len(want))
	}
	for i, r := range want {
		if all[i] != r {
			t.Errorf("All()[%d] = %s, want %s", i, all[i], r)
		}
	}
}

func TestAllCopies(t *testing.T) {
	all := All()
	all[0] = "mutated"

	if All()[0] != EU {
		t.Error("mutating the returned slice should not affect the registry")
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		region Region
		want   string
		ok     bool
	}{
		{EU, EUEndpoint, true},
		{US, USEndpoint, true},
		{SA, SAEndpoint, true},
		{"ap", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := Endpoint(tt.region)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Endpoint(%q) = (%q, %t), want (%q, %t)", tt.region, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     Region
		ok       bool
	}{
		{"eu_exact", EUEndpoint, EU, true},
		{"us_exact", USEndpoint, US, true},
		{"sa_exact", SAEndpoint, SA, true},
		{"grpcs_scheme", "grpcs://" + EUEndpoint, EU, true},
		{"https_scheme", "https://" + USEndpoint, US, true},
		{"host_only", "face.bws-sa.bioid.com", SA, true},
		{"unknown", "face.bws-ap.example.com:443", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromEndpoint(tt.endpoint)
			if got != tt.want || ok != tt.ok {
				t.Errorf("FromEndpoint(%q) = (%q, %t), want (%q, %t)",
					tt.endpoint, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Region
		ok    bool
	}{
		{"EU", EU, true},
		{"eu", EU, true},
		{"Us", US, true},
		{" sa ", SA, true},
		{"ap", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Parse(%q) = (%q, %t), want (%q, %t)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known(EU) || !Known(US) || !Known(SA) {
		t.Error("configured regions should be known")
	}
	if Known("ap") || Known("") {
		t.Error("unconfigured regions should not be known")
	}
}
