package observe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNotifyOrderAndCancel(t *testing.T) {
	l := &List[int]{}

	got := []string{}
	cancelA := l.Subscribe(func(v int) { got = append(got, "a") })
	l.Subscribe(func(v int) { got = append(got, "b") })

	l.Notify(1)
	cancelA()
	cancelA()
	l.Notify(2)

	want := []string{"a", "b", "b"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("Bad notifications; diff (-got +want)\n%s", diff)
	}
}

func TestSubscriberMayUnsubscribeDuringNotify(t *testing.T) {
	l := &List[string]{}

	calls := 0
	var cancel func()
	cancel = l.Subscribe(func(string) {
		calls++
		cancel()
	})

	l.Notify("x")
	l.Notify("y")

	if calls != 1 {
		t.Fatalf("Subscriber called %d times, want 1", calls)
	}
}
