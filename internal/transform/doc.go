// Package transform wraps the external upscaler that turns an input image into
// a higher resolution output image.
//
// The pipeline only depends on the Engine interface. CommandEngine runs a
// realesrgan-ncnn-vulkan compatible binary through an injectable Executor so
// tests can replace the process boundary.
package transform
