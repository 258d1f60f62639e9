package profile

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "empty", raw: "   ", want: ""},
		{name: "local mobile", raw: "012-345 6789", want: "+60123456789"},
		{name: "local landline", raw: "(03) 7967 7022", want: "+60379677022"},
		{name: "country code without plus", raw: "60123456789", want: "+60123456789"},
		{name: "already E.164", raw: "+60 12-345 6789", want: "+60123456789"},
		{name: "foreign number kept", raw: "+44 20 7946 0958", want: "+442079460958"},
		{name: "international prefix", raw: "0044 20 7946 0958", want: "+442079460958"},
		{name: "full-width digits", raw: "０１２－３４５６７８９", want: "+60123456789"},
		{name: "full-width plus", raw: "＋６０１２３４５６７８９", want: "+60123456789"},
		{name: "too short", raw: "+6012", wantErr: ErrPhoneTooShort},
		{name: "too long", raw: "+6012345678901234", wantErr: ErrPhoneTooLong},
		{name: "no country code", raw: "123456789", wantErr: ErrPhoneNoCountry},
		{name: "letters", raw: "012-CALL-NOW", wantErr: ErrPhoneCharacters},
		{name: "plus in the middle", raw: "012+3456789", wantErr: ErrPhoneCharacters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw)
			if err != tt.wantErr {
				t.Fatalf("NormalizePhone() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone() = %v, want %v", got, tt.want)
			}
		})
	}
}
