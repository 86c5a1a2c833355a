//go:build linux && amd64 && cgo

package jit

/*
#include <stdint.h>
#include <stdio.h>
#include <unistd.h>

static FILE *bintrans_input;
static FILE *bintrans_output;

static FILE *bintrans_in_stream(void) {
	return bintrans_input ? bintrans_input : stdin;
}

static FILE *bintrans_out_stream(void) {
	return bintrans_output ? bintrans_output : stdout;
}

// Generated code aligns rsp before calling the helpers, but a subroutine
// entered with call runs one slot deeper than the linear walk assumes.
__attribute__((force_align_arg_pointer))
static void bintrans_in(double *slot) {
	double v = 0;
	if (fscanf(bintrans_in_stream(), "%lf", &v) != 1) {
		v = 0;
	}
	*slot = v;
}

__attribute__((force_align_arg_pointer))
static void bintrans_out(const double *slot) {
	FILE *f = bintrans_out_stream();
	fprintf(f, "%g\n", *slot);
	fflush(f);
}

static uintptr_t bintrans_in_addr(void) { return (uintptr_t)bintrans_in; }
static uintptr_t bintrans_out_addr(void) { return (uintptr_t)bintrans_out; }

static int bintrans_set_io(int in_fd, int out_fd) {
	FILE *in = NULL, *out = NULL;
	if (in_fd >= 0) {
		int fd = dup(in_fd);
		if (fd < 0 || (in = fdopen(fd, "r")) == NULL) {
			if (fd >= 0) close(fd);
			return -1;
		}
	}
	if (out_fd >= 0) {
		int fd = dup(out_fd);
		if (fd < 0 || (out = fdopen(fd, "w")) == NULL) {
			if (fd >= 0) close(fd);
			if (in) fclose(in);
			return -1;
		}
	}
	if (bintrans_input) fclose(bintrans_input);
	if (bintrans_output) fclose(bintrans_output);
	bintrans_input = in;
	bintrans_output = out;
	return 0;
}

// Enters generated code. The red zone of this frame is skipped, rbx and
// rbp are kept, and rsp is aligned so the code starts 8 mod 16 like any
// called function.
static void bintrans_enter(uintptr_t entry) {
	__asm__ volatile(
		"sub $128, %%rsp\n\t"
		"push %%rbp\n\t"
		"push %%rbx\n\t"
		"mov %%rsp, %%rbp\n\t"
		"and $-16, %%rsp\n\t"
		"call *%%rax\n\t"
		"mov %%rbp, %%rsp\n\t"
		"pop %%rbx\n\t"
		"pop %%rbp\n\t"
		"add $128, %%rsp\n\t"
		: "+a"(entry)
		:
		: "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11",
		  "xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
		  "xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15",
		  "memory", "cc");
}
*/
import "C"

import (
	"os"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// callNative runs generated code through the C trampoline. cgo switches to
// the system stack, which the generated code and the helpers need.
func callNative(entry uintptr) error {
	if entry == 0 {
		return errors.Errorf(errors.NullInput, -1, "no native entry point")
	}
	C.bintrans_enter(C.uintptr_t(entry))
	return nil
}

// HostHelpers returns the addresses generated code calls for in and out.
func HostHelpers() Helpers {
	return Helpers{
		In:  uintptr(C.bintrans_in_addr()),
		Out: uintptr(C.bintrans_out_addr()),
	}
}

// SetHostIO redirects the in/out helpers. A nil file selects stdin or
// stdout. The files are duplicated, so callers may close theirs.
func SetHostIO(in, out *os.File) error {
	inFd, outFd := -1, -1
	if in != nil {
		inFd = int(in.Fd())
	}
	if out != nil {
		outFd = int(out.Fd())
	}
	if C.bintrans_set_io(C.int(inFd), C.int(outFd)) != 0 {
		return errors.Errorf(errors.AllocationFailure, -1, "cannot attach host streams")
	}
	return nil
}
