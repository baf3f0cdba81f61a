//go:build jni

package vmhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"git.wow.st/gmp/jni"
)

func init() {
	Register("jni", newJNIRuntime)
	DefaultBackend = "jni"
}

// A process can host at most one JVM, and it cannot be recreated after
// DestroyJavaVM.
var jvmOnce sync.Once

// jniRuntime embeds one JVM in the process.
type jniRuntime struct {
	vm jni.JVM
}

func newJNIRuntime(opts Options) (Runtime, error) {
	created := false
	var vm jni.JVM
	jvmOnce.Do(func() {
		created = true
		// JNI_CreateJavaVM reads JAVA_TOOL_OPTIONS itself, which is how the
		// class path and engine flags reach a VM created without options.
		tool := append([]string{"-Xcheck:jni", "-Djava.class.path=" + opts.Classpath}, opts.Flags...)
		if prev := os.Getenv("JAVA_TOOL_OPTIONS"); prev != "" {
			tool = append([]string{prev}, tool...)
		}
		_ = os.Setenv("JAVA_TOOL_OPTIONS", strings.Join(tool, " "))

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		vm = jni.CreateJavaVM()
	})
	if !created {
		return nil, errors.New("a JVM was already created in this process")
	}
	if vm == (jni.JVM{}) {
		return nil, errors.New("JNI_CreateJavaVM failed")
	}
	return &jniRuntime{vm: vm}, nil
}

func (r *jniRuntime) Attach() (Context, error) {
	return &jniContext{vm: r.vm}, nil
}

// Destroy leaves the JVM running: DestroyJavaVM blocks until every non-daemon
// Java thread ends and the VM cannot be created again, so it is torn down
// with the process.
func (r *jniRuntime) Destroy() error { return nil }

// jniContext attaches the calling thread for the duration of each call.
type jniContext struct {
	vm jni.JVM
}

func (c *jniContext) Detach() error { return nil }

func (c *jniContext) CallMain(_ context.Context, class string, args []string) (err error) {
	stage := ErrAttachFailure
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			err = &InvokeError{Kind: classifyThrowable(stage, msg), Class: class, Msg: msg}
		}
	}()

	return jni.Do(c.vm, func(env jni.Env) error {
		stage = ErrClassNotFound
		cls := jni.FindClass(env, strings.ReplaceAll(class, ".", "/"))
		stage = ErrEntryPointMissing
		main := jni.GetStaticMethodID(env, cls, "main", "([Ljava/lang/String;)V")
		stage = ErrAttachFailure

		strCls := jni.FindClass(env, "java/lang/String")
		arr := jni.NewObjectArray(env, jni.Size(len(args)), strCls, 0)
		for i, a := range args {
			s := jni.JavaString(env, a)
			if err := jni.SetObjectArrayElement(env, arr, jni.Size(i), jni.Object(s)); err != nil {
				return &InvokeError{Kind: ErrAttachFailure, Class: class, Err: err}
			}
		}

		// The binding renders a thrown exception with toString() and clears it.
		if err := jni.CallStaticVoidMethod(env, cls, main, jni.Value(arr)); err != nil {
			return &InvokeError{Kind: ErrUncaughtException, Class: class, Msg: err.Error()}
		}
		return nil
	})
}

func classifyThrowable(stage error, msg string) error {
	switch {
	case strings.Contains(msg, "NoClassDefFoundError"), strings.Contains(msg, "ClassNotFoundException"):
		return ErrClassNotFound
	case strings.Contains(msg, "NoSuchMethodError"):
		return ErrEntryPointMissing
	}
	return stage
}
