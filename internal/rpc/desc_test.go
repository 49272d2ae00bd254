package rpc

import "testing"

func TestLockServiceDesc(t *testing.T) {
	desc := LockService_ServiceDesc
	// No .proto file backs the service; reflection clients must not be sent
	// looking for one.
	if desc.Metadata != nil {
		t.Errorf("metadata = %v, want nil", desc.Metadata)
	}

	want := map[string]string{
		"GetLock":     LockService_GetLock_FullMethodName,
		"AcquireLock": LockService_AcquireLock_FullMethodName,
		"ReleaseLock": LockService_ReleaseLock_FullMethodName,
	}
	if len(desc.Methods) != len(want) {
		t.Fatalf("methods = %d, want %d", len(desc.Methods), len(want))
	}
	for _, m := range desc.Methods {
		full, ok := want[m.MethodName]
		if !ok {
			t.Errorf("unexpected method %q", m.MethodName)
			continue
		}
		if full != "/"+desc.ServiceName+"/"+m.MethodName {
			t.Errorf("%s full name = %q", m.MethodName, full)
		}
		if m.Handler == nil {
			t.Errorf("%s has no handler", m.MethodName)
		}
	}
}
