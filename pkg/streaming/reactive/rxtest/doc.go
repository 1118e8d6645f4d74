/*
Package rxtest verifies reactive sources step by step.

A Verifier subscribes to a source, queues every signal it emits and checks
them against a script:

	rxtest.Create(reactive.Range(1, 3)).
		ExpectNext(1, 2, 3).
		VerifyComplete(t)

Demand can be scripted with WithInitialRequest and ThenRequest, and virtual
time with ThenAdvance. When order is not deterministic, record the values
and assert on the set:

	rxtest.Create(parallel).
		RecordWith().
		ThenConsumeWhile(func(int) bool { return true }).
		ConsumeRecordedWith(func(got []int) error { ... }).
		VerifyComplete(t)

Each failed expectation wraps one of the package's sentinel errors, so a
test can tell an unexpected error from a wrong one or a missing one.

ColdPublisher is a fixed source that counts its subscriptions.
*/
package rxtest
