package backend

import (
	"testing"
)

func TestFieldErrorsPreserveOrder(t *testing.T) {
	resp := &Response{StatusCode: 422, Body: []byte(`{
		"message": "The given data was invalid.",
		"errors": {
			"password": ["too short", "needs a digit"],
			"email": ["has already been taken"],
			"name": "is required"
		}
	}`)}
	env, err := resp.Envelope()
	if err != nil {
		t.Fatalf("Envelope: %v", err)
	}
	if len(env.Errors) != 3 || env.Errors[0].Field != "password" || env.Errors[2].Field != "name" {
		t.Fatalf("Errors = %+v", env.Errors)
	}
	want := "too short, needs a digit, has already been taken, is required"
	if got := env.Errors.Join(); got != want {
		t.Fatalf("Join() = %q, want %q", got, want)
	}
}

func TestFieldErrorsRejectsGarbage(t *testing.T) {
	resp := &Response{StatusCode: 422, Body: []byte(`{"errors":{"password":[1,2]}}`)}
	if _, err := resp.Envelope(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestObjectUnwrapsEnvelope(t *testing.T) {
	type status struct {
		IsRegistered bool `json:"is_registered"`
	}
	cases := map[string]string{
		"bare":      `{"is_registered":true}`,
		"enveloped": `{"success":true,"message":"ok","data":{"is_registered":true}}`,
	}
	for name, body := range cases {
		var s status
		if err := (&Response{StatusCode: 200, Body: []byte(body)}).Object(&s); err != nil {
			t.Fatalf("%s: Object: %v", name, err)
		}
		if !s.IsRegistered {
			t.Fatalf("%s: IsRegistered = false", name)
		}
	}

	var s status
	if err := (&Response{StatusCode: 200, Body: []byte(`{"success":true,"data":null}`)}).Object(&s); err == nil {
		t.Fatal("expected error for null data")
	}
	if err := (&Response{StatusCode: 200}).Object(&s); err == nil {
		t.Fatal("expected error for empty body")
	}
}
