package devicestate

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	want := DeviceState{
		Identifier:                "a1b2c3d4",
		LocalUserUUID:             "deadbeefcafebabe",
		ServerFriendlyDescription: "<MacBookPro13,2> <macOS;13.1;22C65>",
		UniqueDeviceIdentifier:    "9E6F1234-ABCD-4EF0-9A12-000000000000",
	}

	got, err := Unmarshal(want.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	got, err := Unmarshal(nil)
	if err != nil {
		t.Fatalf("Unmarshal(nil): %v", err)
	}
	if got != (DeviceState{}) {
		t.Fatalf("Unmarshal(nil) = %+v, want zero value", got)
	}
}
