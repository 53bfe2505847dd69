package media

import "testing"

func TestParseProbe(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{"duration present", `{"format":{"duration":"12.345"}}`, 12.345, false},
		{"no duration", `{"format":{}}`, 0, false},
		{"empty format", `{}`, 0, false},
		{"bad duration", `{"format":{"duration":"abc"}}`, 0, true},
		{"bad json", `{`, 0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := parseProbe(c.raw)
			if c.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProbe: %v", err)
			}
			if res.DurationSeconds != c.want {
				t.Fatalf("duration = %v; want %v", res.DurationSeconds, c.want)
			}
		})
	}
}
