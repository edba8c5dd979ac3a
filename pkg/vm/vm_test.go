package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runAndCapture(t *testing.T, source string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	v := New(WithOutput(&out))
	err := v.Interpret(source)
	return out.String(), err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, err := runAndCapture(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, err := runAndCapture(t, `print "foo" + "bar";`)
	require.NoError(t, err)
	require.Equal(t, "foobar\n", out)
}

func TestGlobalVariables(t *testing.T) {
	out, err := runAndCapture(t, `var x = 10; x = x + 5; print x;`)
	require.NoError(t, err)
	require.Equal(t, "15\n", out)
}

func TestUndefinedGlobalReadIsRuntimeError(t *testing.T) {
	_, err := runAndCapture(t, `print nope;`)
	require.Error(t, err)
	var rtErr *RuntimeError
	require.ErrorAs(t, err, &rtErr)
	require.Contains(t, rtErr.Message, "Undefined variable")
}

func TestAssignToUndefinedGlobalIsRuntimeErrorAndDoesNotDefine(t *testing.T) {
	v := New(WithOutput(&bytes.Buffer{}))
	err := v.Interpret(`x = 1;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Undefined variable")

	err = v.Interpret(`print x;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Undefined variable")
}

func TestIfElseBranching(t *testing.T) {
	out, err := runAndCapture(t, `if (1 < 2) { print "yes"; } else { print "no"; }`)
	require.NoError(t, err)
	require.Equal(t, "yes\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, err := runAndCapture(t, `
		var i = 0;
		var sum = 0;
		while (i < 5) { sum = sum + i; i = i + 1; }
		print sum;
	`)
	require.NoError(t, err)
	require.Equal(t, "10\n", out)
}

func TestForLoop(t *testing.T) {
	out, err := runAndCapture(t, `
		var sum = 0;
		for (var i = 0; i < 5; i = i + 1) { sum = sum + i; }
		print sum;
	`)
	require.NoError(t, err)
	require.Equal(t, "10\n", out)
}

func TestFunctionCallAndReturn(t *testing.T) {
	out, err := runAndCapture(t, `
		fun add(a, b) { return a + b; }
		print add(2, 3);
	`)
	require.NoError(t, err)
	require.Equal(t, "5\n", out)
}

func TestClosureCapturesSharedUpvalue(t *testing.T) {
	out, err := runAndCapture(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestRecursion(t *testing.T) {
	out, err := runAndCapture(t, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	require.NoError(t, err)
	require.Equal(t, "55\n", out)
}

func TestClassesFieldsAndMethods(t *testing.T) {
	out, err := runAndCapture(t, `
		class Counter {
			init() { this.value = 0; }
			increment() { this.value = this.value + 1; }
			get() { return this.value; }
		}
		var c = Counter();
		c.increment();
		c.increment();
		print c.get();
	`)
	require.NoError(t, err)
	require.Equal(t, "2\n", out)
}

func TestSingleInheritanceAndSuper(t *testing.T) {
	out, err := runAndCapture(t, `
		class Animal {
			speak() { return "..."; }
		}
		class Dog < Animal {
			speak() { return "Woof, " + super.speak(); }
		}
		print Dog().speak();
	`)
	require.NoError(t, err)
	require.Equal(t, "Woof, ...\n", out)
}

func TestBoundMethodCanEscapeAsValue(t *testing.T) {
	out, err := runAndCapture(t, `
		class Greeter {
			init(name) { this.name = name; }
			greet() { return "hi " + this.name; }
		}
		var g = Greeter("ada");
		var fn = g.greet;
		print fn();
	`)
	require.NoError(t, err)
	require.Equal(t, "hi ada\n", out)
}

func TestListBuildIndexAndStore(t *testing.T) {
	out, err := runAndCapture(t, `
		var l = [1, 2, 3];
		l[1] = 20;
		print l[0];
		print l[1];
		print l[2];
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n20\n3\n", out)
}

func TestListIndexOutOfBoundsIsRuntimeError(t *testing.T) {
	_, err := runAndCapture(t, `var l = [1]; print l[5];`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Index out of bounds.")
}

func TestCallingNonFunctionIsRuntimeError(t *testing.T) {
	_, err := runAndCapture(t, `var x = 1; x();`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Can only call functions and classes.")
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	_, err := runAndCapture(t, `fun f(a, b) { return a + b; } f(1);`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Expected 2 arguments but got 1.")
}

func TestRuntimeErrorIncludesStackTraceNewestFirst(t *testing.T) {
	_, err := runAndCapture(t, `
		fun inner() { return 1 + nil; }
		fun outer() { return inner(); }
		outer();
	`)
	require.Error(t, err)
	lines := strings.Split(err.Error(), "\n")
	require.Contains(t, lines[0], "Operands must be two numbers or two strings.")
	require.Contains(t, lines[1], "inner()")
	require.Contains(t, lines[2], "outer()")
	require.Contains(t, lines[3], "script")
}

func TestStringEqualityIsByValueViaInterning(t *testing.T) {
	out, err := runAndCapture(t, `
		var a = "hi" + "";
		var b = "hi";
		print a == b;
	`)
	require.NoError(t, err)
	require.Equal(t, "true\n", out)
}

func TestGCStressDoesNotCorruptLiveState(t *testing.T) {
	var out bytes.Buffer
	v := New(WithOutput(&out), WithGCStressTest())
	err := v.Interpret(`
		class Node {
			init(value) { this.value = value; this.next = nil; }
		}
		var head = nil;
		var i = 0;
		while (i < 50) {
			var n = Node(i);
			n.next = head;
			head = n;
			i = i + 1;
		}
		var sum = 0;
		var cur = head;
		while (cur != nil) {
			sum = sum + cur.value;
			cur = cur.next;
		}
		print sum;
	`)
	require.NoError(t, err)
	require.Equal(t, "1225\n", out.String())
}

func TestNativeClockReturnsNumber(t *testing.T) {
	out, err := runAndCapture(t, `print clock() >= 0;`)
	require.NoError(t, err)
	require.Equal(t, "true\n", out)
}

func TestCompileErrorReturnsErrCompile(t *testing.T) {
	_, err := runAndCapture(t, `var = 1;`)
	require.ErrorIs(t, err, ErrCompile)
}
