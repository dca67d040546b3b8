package arp

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/gl/v3.2-core/gl"
)

const defaultVertSrc = `#version 330 core
in vec3 pos;
uniform mat4 model;
uniform mat4 view;
uniform mat4 projection;
out vec2 texCoords;
void main() {
    gl_Position = projection * view * model * vec4(pos, 1);
    texCoords = (pos.xy + vec2(1, 1)) * 0.5;
}
` + "\x00"

const defaultFragSrc = `#version 330 core
layout(location = 0) out vec4 color;
in vec2 texCoords;
uniform sampler2D tex;
void main() {
    color = texture(tex, texCoords);
}
` + "\x00"

const parallaxVertSrc = `#version 330 core
in vec3 pos;
uniform mat4 model;
uniform mat4 view;
uniform mat4 projection;
uniform vec3 cameraPos;
out vec2 texCoords;
out vec3 cameraToFrag;
void main() {
    vec4 worldPos = model * vec4(pos, 1);
    gl_Position = projection * view * worldPos;
    texCoords = (pos.xy + vec2(1, 1)) * 0.5;
    cameraToFrag = worldPos.xyz - cameraPos;
}
` + "\x00"

// The fragment shader marches from the live camera toward each fragment's
// world position, reprojecting every probe into the submitted frame and
// comparing against its depth buffer. The first probe that lands behind the
// stored depth is where the submitted frame has surface, so its color is
// sampled there.
const parallaxFragSrc = `#version 330 core
layout(location = 0) out vec4 color;
in vec2 texCoords;
in vec3 cameraToFrag;
uniform vec3 cameraPos;
uniform mat4 submitViewProj;
uniform sampler2D tex;
uniform sampler2D depthTex;

const int MAX_PARALLAX_ITERATIONS = 64;

void main() {
    for(int i = 1; i <= MAX_PARALLAX_ITERATIONS; i++) {
        float t = float(i) / float(MAX_PARALLAX_ITERATIONS);
        vec3 probe = cameraPos + t * cameraToFrag;

        vec4 clip = submitViewProj * vec4(probe, 1);
        vec3 ndc = clip.xyz / clip.w;
        vec2 uv = ndc.xy * 0.5 + 0.5;
        float probeDepth = ndc.z * 0.5 + 0.5;

        if(probeDepth >= texture(depthTex, uv).r) {
            color = texture(tex, uv);
            return;
        }
    }
    color = texture(tex, texCoords);
}
` + "\x00"

// compileShader compiles a single shader stage, surfacing the driver's info
// log on failure.
func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		infoLog := strings.Repeat("\x00", int(logLength)+1)
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(infoLog))

		gl.DeleteShader(shader)
		return 0, errors.Newf("failed to compile shader: %s", infoLog)
	}

	return shader, nil
}

// linkProgram compiles both stages and links them, surfacing the driver's
// info log on failure. The returned program is 0 on error.
func linkProgram(vertSrc, fragSrc string) (uint32, error) {
	vertShader, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fragShader, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vertShader)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vertShader)
	gl.AttachShader(program, fragShader)
	gl.LinkProgram(program)

	gl.DeleteShader(vertShader)
	gl.DeleteShader(fragShader)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		infoLog := strings.Repeat("\x00", int(logLength)+1)
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(infoLog))

		gl.DeleteProgram(program)
		return 0, errors.Newf("failed to link program: %s", infoLog)
	}

	return program, nil
}
