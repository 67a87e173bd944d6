package sampler

import "testing"

func TestParseResize(t *testing.T) {
	tests := []struct {
		in      string
		want    Resize
		wantErr bool
	}{
		{"", Resize{}, false},
		{"50%", Resize{Mode: ResizePercentage, Value: 50}, false},
		{"w640", Resize{Mode: ResizeWidth, Value: 640}, false},
		{"h480", Resize{Mode: ResizeHeight, Value: 480}, false},
		{"640", Resize{}, true},
		{"w-1", Resize{}, true},
		{"%", Resize{}, true},
	}
	for _, tt := range tests {
		got, err := ParseResize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseResize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResize(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestResize_Apply(t *testing.T) {
	tests := []struct {
		r      Resize
		ww, wh int
	}{
		{Resize{}, 0, 0},
		{Resize{Mode: ResizePercentage, Value: 50}, 960, 540},
		{Resize{Mode: ResizeWidth, Value: 640}, 640, 0},
		{Resize{Mode: ResizeHeight, Value: 360}, 0, 360},
	}
	for _, tt := range tests {
		w, h := tt.r.Apply(1920, 1080)
		if w != tt.ww || h != tt.wh {
			t.Errorf("%+v.Apply = %dx%d, want %dx%d", tt.r, w, h, tt.ww, tt.wh)
		}
	}
}
